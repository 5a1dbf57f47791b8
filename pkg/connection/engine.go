package connection

import (
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xtaci/gaio"
)

// completion is the per-operation continuation carried through the watcher as
// the operation context.
type completion func(res gaio.OpResult)

// Engine drives asynchronous socket reads and writes for any number of
// connections. Completions are dispatched on their own goroutines, so a
// continuation may block (or start the next operation) without stalling the
// event loop.
type Engine struct {
	watcher *gaio.Watcher
	log     zerolog.Logger

	die       chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine starts an engine. bufSize sizes the watcher's internal swap
// buffer; zero keeps the watcher default.
func NewEngine(bufSize int, logger zerolog.Logger) (*Engine, error) {
	var (
		w   *gaio.Watcher
		err error
	)
	if bufSize > 0 {
		w, err = gaio.NewWatcherSize(bufSize)
	} else {
		w, err = gaio.NewWatcher()
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		watcher: w,
		log:     logger,
		die:     make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.loop()
	return e, nil
}

var (
	defaultEngine     *Engine
	defaultEngineErr  error
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the process-wide engine, starting it on first use.
func DefaultEngine() (*Engine, error) {
	defaultEngineOnce.Do(func() {
		defaultEngine, defaultEngineErr = NewEngine(0, zerolog.Nop())
	})
	return defaultEngine, defaultEngineErr
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		results, err := e.watcher.WaitIO()
		if err != nil {
			select {
			case <-e.die:
			default:
				e.log.Error().Err(err).Msg("watcher stopped")
			}
			return
		}

		for _, res := range results {
			fn, ok := res.Context.(completion)
			if !ok {
				continue
			}
			go fn(res)
		}
	}
}

func (e *Engine) read(conn net.Conn, buf []byte, fn completion) error {
	return e.watcher.Read(fn, conn, buf)
}

func (e *Engine) write(conn net.Conn, buf []byte, fn completion) error {
	return e.watcher.Write(fn, conn, buf)
}

// release hands the socket back from the watcher. Pending operations on it
// complete with an error.
func (e *Engine) release(conn net.Conn) error {
	return e.watcher.Free(conn)
}

// Close stops the engine. Operations still pending never complete, so close
// connections first.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.die)
		err = e.watcher.Close()
		<-e.done
	})
	return err
}
