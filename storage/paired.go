package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Paired implements Store wrapping a pair of stores, one fast, one slow. Puts
// land in the fast store and are copied to the slow store in the background.
// Gets are served from the fast store if possible, otherwise from the slow
// store, in which case the value is also copied to the fast store so the next
// read of the same paste stays local.
type Paired struct {
	fast Store
	slow Store

	wbc  chan [2][]byte
	done sync.WaitGroup
	once sync.Once
}

// NewPaired starts the writeback goroutine, which runs until Close.
func NewPaired(fast, slow Store) *Paired {
	p := &Paired{
		fast: fast,
		slow: slow,
		wbc:  make(chan [2][]byte, 42),
	}
	p.done.Add(1)
	go p.writeback()
	return p
}

func (s *Paired) Get(key []byte) (value []byte, err error) {
	value, err = s.fast.Get(key)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNotFound) {
		return
	}
	value, err = s.slow.Get(key)
	if err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{
		"key": fmt.Sprintf("%.10x", key),
	})
	if ferr := s.fast.Put(key, value); ferr != nil {
		logger.WithField("err", ferr).Warn("Could not propagate from slow to fast")
	} else {
		logger.Debug("Propagated from slow to fast")
	}
	return value, nil
}

func (s *Paired) Put(key, value []byte) (err error) {
	if err = s.fast.Put(key, value); err != nil {
		return err
	}
	// Blocks once the queue fills up and the slow store cannot keep pace.
	s.wbc <- [2][]byte{dup(key), dup(value)}
	return nil
}

// Close waits for all queued writebacks to reach the slow store. Put must not
// be called after Close.
func (s *Paired) Close() error {
	s.once.Do(func() {
		close(s.wbc)
	})
	s.done.Wait()
	return nil
}

func (s *Paired) writeback() {
	defer s.done.Done()
	for kv := range s.wbc {
		s.writeback1(kv[0], kv[1])
	}
}

func (s *Paired) writeback1(key, value []byte) {
	logger := log.WithFields(log.Fields{
		"key": fmt.Sprintf("%.10x", key),
	})
	for {
		err := s.slow.Put(key, value)
		if err == nil {
			logger.Debug("Propagated from fast to slow")
			break
		}
		logger.WithFields(log.Fields{
			"err": err,
		}).Warn("Could not propagate from fast to slow")
		// Should randomize.
		time.Sleep(time.Second)
	}
}
