// Package scheduler triggers named jobs on cron schedules in a configurable
// timezone. A daily "HH:MM" schedule is a cron entry underneath.
//
// Overlapping runs of the same job are skipped, so a slow cycle never runs
// twice at once.
package scheduler
