package service

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectLocks serializes read-check-write sequences per project. The
// repositories use no multi-document transactions, so every operation that
// reads a pool or checks a pending record before writing must hold the
// project's mutex for its whole sequence: distribution (pool selection and
// claim), submit, review, member removal and explicit completion.
type ProjectLocks struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Lock acquires the mutex for a project, creating it on first use. Mutexes
// are kept for the life of the process; the per-project footprint is one
// mutex, which is not worth evicting.
func (p *ProjectLocks) Lock(projectID primitive.ObjectID) func() {
	mu, _ := p.locks.LoadOrStore(projectID.Hex(), &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
