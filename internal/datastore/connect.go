package datastore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/config"
)

// defaultOpener opens a fresh connection pool and verifies it with a ping.
// A failed handle is never reused; each retry attempt gets a new one.
func defaultOpener(cfg config.DatabaseConfig) func() (*sql.DB, error) {
	return func() (*sql.DB, error) {
		db, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			return nil, err
		}
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

// isTransientConnectError separates errors worth retrying (backend still
// starting, container not up, DNS not resolvable yet, connection dropped)
// from fatal ones (auth failure, bad SQL). Unknown errors are fatal.
func isTransientConnectError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "57P03": // the database system is starting up
			return true
		case "57P01": // terminated by administrator
			return true
		}
		if pqErr.Code.Class() == "28" { // invalid authorization
			return false
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1040: // too many connections
			return true
		case 1053: // server shutdown in progress
			return true
		}
		// access denied, unknown database, bad SQL
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func nextDelay(delay, max time.Duration) time.Duration {
	delay = delay * 3 / 2
	if delay > max {
		return max
	}
	return delay
}

// Connect starts the background retry loop and returns the readiness gate.
// The gate resolves after the first successful connection and a completed
// schema-initialization pass, or rejects permanently on fatal failure or
// attempt exhaustion. Operators restart the process after exhaustion.
func (p *Postgres) Connect(ctx context.Context) *ReadyGate {
	go p.connectWithRetry(ctx)
	return p.gate
}

func (p *Postgres) connectWithRetry(ctx context.Context) {
	delay := p.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		db, err := p.open()
		if err == nil {
			p.db = db
			p.logger.Info("postgres connected", zap.Int("attempt", attempt))
			if initErr := p.initSchema(ctx); initErr != nil {
				p.logger.Error("postgres schema init failed", zap.Error(initErr))
				p.gate.reject(initErr)
				return
			}
			p.logger.Info("postgres schema ready")
			p.gate.resolve()
			return
		}

		if !isTransientConnectError(err) || attempt >= p.retry.MaxAttempts {
			p.logger.Error("postgres connection failed (final)",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			p.gate.reject(err)
			return
		}

		p.logger.Warn("postgres connect attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			p.gate.reject(ctx.Err())
			return
		}
		delay = nextDelay(delay, p.retry.MaxDelay)
	}
}
