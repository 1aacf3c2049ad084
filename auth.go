package vock

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// authorizer de-duplicates authorization prompts. Answers are cached per
// fingerprint and at most one prompt is outstanding at any time.
type authorizer struct {
	prompt func(fingerprint string, reply func(bool))

	mu      sync.Mutex
	cache   map[string]bool
	waiting map[string][]func(bool)
	order   []string
	busy    bool
}

func newAuthorizer(prompt func(string, func(bool))) *authorizer {
	return &authorizer{
		prompt:  prompt,
		cache:   make(map[string]bool),
		waiting: make(map[string][]func(bool)),
	}
}

// isAuthorized calls done with the answer for fingerprint, prompting only
// if no answer is cached and no prompt for it is pending.
func (a *authorizer) isAuthorized(fingerprint string, done func(bool)) {
	a.mu.Lock()
	if ok, hit := a.cache[fingerprint]; hit {
		a.mu.Unlock()
		done(ok)
		return
	}
	if _, queued := a.waiting[fingerprint]; !queued {
		a.order = append(a.order, fingerprint)
	}
	a.waiting[fingerprint] = append(a.waiting[fingerprint], done)
	next, ok := a.nextLocked()
	a.mu.Unlock()

	if ok {
		a.ask(next)
	}
}

func (a *authorizer) nextLocked() (string, bool) {
	if a.busy || len(a.order) == 0 {
		return "", false
	}
	fp := a.order[0]
	a.order = a.order[1:]
	a.busy = true
	return fp, true
}

func (a *authorizer) ask(fingerprint string) {
	logrus.WithFields(logrus.Fields{
		"function":    "authorizer.ask",
		"fingerprint": fingerprint,
	}).Info("Requesting authorization")

	var once sync.Once
	a.prompt(fingerprint, func(ok bool) {
		once.Do(func() { a.answer(fingerprint, ok) })
	})
}

func (a *authorizer) answer(fingerprint string, ok bool) {
	a.mu.Lock()
	a.cache[fingerprint] = ok
	callbacks := a.waiting[fingerprint]
	delete(a.waiting, fingerprint)
	a.busy = false
	next, more := a.nextLocked()
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "authorizer.answer",
		"fingerprint": fingerprint,
		"authorized":  ok,
		"waiters":     len(callbacks),
	}).Info("Authorization decided")

	for _, done := range callbacks {
		done(ok)
	}
	if more {
		a.ask(next)
	}
}

// forget drops the cached answer for fingerprint.
func (a *authorizer) forget(fingerprint string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, fingerprint)
}
