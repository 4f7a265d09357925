// Package logx is digestbot's logging layer: a thin Logger over zerolog
// with typed fields, a human console writer, a JSON file sink, and an
// optional Slack sink for warnings that an operator should see.
package logx
