// Package dblock serialises integration tests that share one database across
// test binaries. go test runs packages in parallel processes, so an in-process
// mutex is not enough; a loopback listener acts as the cross-process lock.
package dblock

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"time"
)

const (
	basePort  = 40000
	portRange = 10000
	retry     = 50 * time.Millisecond
)

// Acquire blocks until the lock for dsn is held or ctx ends. Tests against
// different databases get different ports and never wait on each other.
func Acquire(ctx context.Context, dsn string) (func(), error) {
	addr := lockAddr(dsn)
	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire db lock %s: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}

func lockAddr(dsn string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(dsn))
	return fmt.Sprintf("127.0.0.1:%d", basePort+int(h.Sum32()%portRange))
}
