package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// maxConsecutiveFailures is the number of failed health checks that
	// marks the process as hung.
	maxConsecutiveFailures = 3

	healthCheckTimeout = 5 * time.Second
	killWaitTimeout    = 5 * time.Second

	// outputWaitDelay bounds how long Wait blocks on output pipes held
	// open by grandchildren.
	outputWaitDelay = 2 * time.Second

	readyPollInterval = 250 * time.Millisecond
)

// Start launches the subprocess and begins monitoring it.
// The process is restarted on failure if configured.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting || m.monitoring() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)
	return nil
}

// monitoring reports whether a monitor goroutine is alive. Caller holds mu.
func (m *Manager) monitoring() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = outputWaitDelay
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}
	cmd.Stdout = &lineLogger{logger: m.logger, name: m.config.Name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: m.logger, name: m.config.Name, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	logger Logger
	name   string
	stream string

	mu  sync.Mutex
	buf []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(l.buf[:i], "\r")
		if len(line) > 0 {
			l.logger.Debug("process output", "name", l.name, "stream", l.stream, "line", string(line))
		}
		l.buf = l.buf[i+1:]
	}
	// Unterminated output is flushed once it grows past one read buffer.
	if len(l.buf) > 4096 {
		l.logger.Debug("process output", "name", l.name, "stream", l.stream, "line", string(l.buf))
		l.buf = l.buf[:0]
	}
	return len(p), nil
}

// waitForExitOrHealthFailure waits for the process to exit, or kills it
// after maxConsecutiveFailures failed health checks.
func (m *Manager) waitForExitOrHealthFailure(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return <-exitCh

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < maxConsecutiveFailures {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process",
				"name", m.config.Name,
				"failures", failures,
			)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) //nolint:errcheck // exit is observed below
			}
			select {
			case <-exitCh:
			case <-time.After(killWaitTimeout):
			}
			return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
		}
	}
}

// monitor watches the process and handles restarts.
func (m *Manager) monitor(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		close(m.done)
		m.mu.Unlock()
	}()

	for {
		m.mu.RLock()
		cmd := m.cmd
		started := m.startTime
		m.mu.RUnlock()

		err := m.waitForExitOrHealthFailure(ctx, cmd)

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			m.logger.Info("process stopped", "name", m.config.Name)
			m.setStatus(StatusStopped, nil)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		m.setStatus(StatusFailed, err)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
			return
		}
		if !IsRecoverable(err) {
			m.logger.Error("unrecoverable failure, not restarting", "name", m.config.Name, "error", err)
			return
		}

		m.mu.Lock()
		if time.Since(started) >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusStopped, nil)
			return
		case <-timer.C:
		}

		m.mu.RLock()
		stopRequested = m.stopRequested
		m.mu.RUnlock()
		if stopRequested {
			m.setStatus(StatusStopped, nil)
			return
		}

		for {
			err := m.startProcess(ctx)
			if err == nil {
				break
			}
			m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)
			m.setStatus(StatusFailed, err)

			m.mu.Lock()
			m.restartCount++
			attempt = m.restartCount
			m.mu.Unlock()
			if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
				m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.calculateBackoffDelay(attempt)):
			}
		}
	}
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
	m.mu.Unlock()
}

// calculateBackoffDelay doubles RestartDelay per attempt, capped at
// MaxRestartDelay. attempt starts at 1.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop sends SIGTERM to the process group, then SIGKILL after
// GracefulTimeout. Pending restarts are cancelled.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning || m.status == StatusStarting
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// WaitReady blocks until the health check passes, the process fails, or
// timeout elapses. Without a health check it only requires the process
// to be running.
func (m *Manager) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		switch m.Status() {
		case StatusFailed, StatusStopped:
			if err := m.LastError(); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrNotReady, m.config.Name, err)
			}
			return fmt.Errorf("%w: %s is %s", ErrNotReady, m.config.Name, m.Status())
		case StatusRunning:
			if m.config.HealthCheckFunc == nil {
				return nil
			}
			checkCtx, checkCancel := context.WithTimeout(ctx, healthCheckTimeout)
			lastErr = m.config.HealthCheckFunc(checkCtx)
			checkCancel()
			if lastErr == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w: %s: %w", ErrNotReady, m.config.Name, lastErr)
			}
			return fmt.Errorf("%w: %s: %w", ErrNotReady, m.config.Name, ctx.Err())
		case <-ticker.C:
		}
	}
}
