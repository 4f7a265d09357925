package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "digestbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "US/Pacific"
}

// Job is a scheduled unit of work. The context is cancelled when the
// scheduler stops or the job timeout expires.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // normalized cron spec
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is the context jobs derive from; set by Start.
	base   context.Context
	cancel context.CancelFunc
}

type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}
