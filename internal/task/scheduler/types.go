package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"chispitas/pkg/logx"
)

type Job func(ctx context.Context) error

// Runner starts a named goroutine; *supervisor.Supervisor satisfies it.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error)
}

type Config struct {
	Timezone string // IANA zone, empty means Local
}

type dailyDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	timer   *time.Timer
	ver     uint64
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	daily  []*dailyDef
	runner Runner

	tmu  sync.Mutex
	once map[string]*onceDef
	ver  uint64

	busyMu sync.Mutex
	busy   map[string]*atomic.Bool
}

// ScheduleInfo describes one registration for status output.
type ScheduleInfo struct {
	Name string
	Kind string // "daily" | "once"
	Spec string
	Next time.Time
}
