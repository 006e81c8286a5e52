package clinicaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/apperr"
)

// Logins records provisioned patient credentials in memory.
type Logins struct {
	mu        sync.Mutex
	Passwords map[string]string
	seq       int
}

func NewLogins() *Logins {
	return &Logins{Passwords: map[string]string{}}
}

func (l *Logins) ProvisionPatientLogin(_ context.Context, username string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.Passwords[username]; ok {
		return "", apperr.DuplicateKey("user "+username, nil)
	}
	l.seq++
	pw := fmt.Sprintf("tmp%03d", l.seq)
	l.Passwords[username] = pw
	return pw, nil
}

func (l *Logins) RemoveLogin(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Passwords, username)
	return nil
}

func (l *Logins) Has(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.Passwords[username]
	return ok
}
