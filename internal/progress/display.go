package progress

import (
	"time"

	"go.uber.org/zap"
)

// Display periodically logs a one-line progress summary. It deliberately
// logs instead of drawing, so output stays readable when piped or captured.
type Display struct {
	tracker  *Tracker
	logger   *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDisplay creates a display that reports every interval.
func NewDisplay(tracker *Tracker, logger *zap.Logger, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic reporting.
func (d *Display) Start() {
	go d.loop()
}

// Stop ends reporting after one final line.
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) loop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.report(false)
		case <-d.stopCh:
			d.report(true)
			return
		}
	}
}

func (d *Display) report(final bool) {
	s := d.tracker.GetStatus()
	msg := "Migration progress"
	if final {
		msg = "Migration finished"
	}
	d.logger.Info(msg,
		zap.Int64("done", s.DoneObjects),
		zap.Int64("failed", s.FailedObjects),
		zap.Int64("skipped", s.SkippedObjects),
		zap.String("transferred", FormatBytes(s.ProcessedBytes)),
		zap.String("speed", FormatSpeed(s.CurrentSpeed)),
		zap.Duration("elapsed", time.Since(s.StartTime).Round(time.Second)),
	)
}
