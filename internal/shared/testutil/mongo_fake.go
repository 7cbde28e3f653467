package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// FakeMongoClient stands in for *mongo.Client in connector and lifecycle tests
type FakeMongoClient struct {
	PingErr         error
	PingDelay       time.Duration
	DisconnectErr   error
	DisconnectDelay time.Duration
	// DisconnectHangs makes Disconnect sleep the full DisconnectDelay even
	// after its context ends, like a driver stuck on a dead socket
	DisconnectHangs bool

	mu          sync.Mutex
	pings       int
	disconnects int
	lastOptions *options.ClientOptions
	handle      *mongo.Client
}

// RecordOptions keeps the options a dialer received
func (f *FakeMongoClient) RecordOptions(opts *options.ClientOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOptions = opts
}

// Ping waits for PingDelay or ctx, then returns PingErr
func (f *FakeMongoClient) Ping(ctx context.Context, _ *readpref.ReadPref) error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()

	if err := wait(ctx, f.PingDelay); err != nil {
		return err
	}
	return f.PingErr
}

// Disconnect waits for DisconnectDelay or ctx, then returns DisconnectErr
func (f *FakeMongoClient) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()

	if f.DisconnectHangs {
		time.Sleep(f.DisconnectDelay)
		return f.DisconnectErr
	}

	if err := wait(ctx, f.DisconnectDelay); err != nil {
		return err
	}
	return f.DisconnectErr
}

// Database returns a handle from an unconnected client so callers can inspect it
func (f *FakeMongoClient) Database(name string, opts ...*options.DatabaseOptions) *mongo.Database {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handle == nil {
		client, err := mongo.NewClient(options.Client().ApplyURI("mongodb://localhost:27017"))
		if err != nil {
			panic(err)
		}
		f.handle = client
	}
	return f.handle.Database(name, opts...)
}

// Pings returns the number of Ping calls
func (f *FakeMongoClient) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// Disconnects returns the number of Disconnect calls
func (f *FakeMongoClient) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// LastOptions returns the options passed to RecordOptions
func (f *FakeMongoClient) LastOptions() *options.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOptions
}

// ErrUnreachable mimics a server selection failure
var ErrUnreachable = errors.New("server selection error: context deadline exceeded, current topology: { Type: Unknown }")

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
