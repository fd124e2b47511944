package database

import (
	"context"
	"sync"
	"time"

	"github.com/go-dbfacade/dbfacade/internal/logging"
)

// LockHandle is the opaque result of LockTablesDict (spec.md §4.5). A
// shadow handle (OriginalLock==false) represents a nested re-acquisition
// of a lock this owner already holds; releasing it does nothing at the
// engine level.
//
// The original design keys ownership off the calling OS thread via
// thread-local storage. Go goroutines have no stable, inspectable
// identity, so ownership here is an explicit caller-supplied token
// (typically a request id or worker id) instead of inferred TLS.
type LockHandle struct {
	Owner        string
	Tables       map[string]bool
	OriginalLock bool
}

// RecordLockHandle is the opaque result of LockRecords.
type RecordLockHandle struct {
	Key   string
	Owner string
}

type lockState struct {
	mu           sync.Mutex
	cond         *sync.Cond
	lockedTables map[string]string // full table name -> owner
	threadLocks  map[string]*LockHandle

	recordMu    sync.Mutex
	recordLocks map[string]string // record key -> owner

	txMu    sync.Mutex
	txCount int

	// obsMu guards observer independently of mu: notify is called both
	// with and without mu held, and must never risk re-locking it.
	obsMu    sync.RWMutex
	observer LockObserver
}

// LockObserver receives table-lock state transitions as they happen,
// purely as an observability hook: internal/lockwatch implements one to
// broadcast them to debug clients. The façade has no compile-time
// dependency in the other direction.
type LockObserver interface {
	OnLockEvent(event, table, owner string)
}

// SetLockObserver installs obs to receive every subsequent lock
// transition. Pass nil to stop observing.
func (d *Database) SetLockObserver(obs LockObserver) {
	s := d.locks
	s.obsMu.Lock()
	s.observer = obs
	s.obsMu.Unlock()
}

// notify logs the transition at DEBUG and calls the installed observer,
// if any.
func (s *lockState) notify(event, table, owner string) {
	logging.LockEvent(event, table, owner)
	s.obsMu.RLock()
	obs := s.observer
	s.obsMu.RUnlock()
	if obs != nil {
		obs.OnLockEvent(event, table, owner)
	}
}

func newLockState() *lockState {
	s := &lockState{
		lockedTables: make(map[string]string),
		threadLocks:  make(map[string]*LockHandle),
		recordLocks:  make(map[string]string),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func isSubset(requested []string, held map[string]bool) bool {
	for _, t := range requested {
		if !held[t] {
			return false
		}
	}
	return true
}

func toTableSet(tables []string) map[string]bool {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return set
}

// LockTablesDict attempts an all-or-nothing lock on every named table for
// owner, per spec.md §4.5's protocol.
func (d *Database) LockTablesDict(ctx context.Context, owner string, tables []string) (*LockHandle, error) {
	s := d.locks
	requested := toTableSet(tables)

	s.mu.Lock()
	if existing, ok := s.threadLocks[owner]; ok {
		if isSubset(tables, existing.Tables) {
			s.mu.Unlock()
			return &LockHandle{Owner: owner, Tables: requested, OriginalLock: false}, nil
		}
		logging.Warn("lock_tables_dict: new request is not a subset of the held lock; releasing previous lock",
			"owner", owner)
		d.releaseHandleLocked(existing)
	}

	for {
		claimed := make([]string, 0, len(tables))
		blocked := false
		for _, t := range tables {
			if holder, ok := s.lockedTables[t]; ok && holder != owner {
				blocked = true
				break
			}
			s.lockedTables[t] = owner
			claimed = append(claimed, t)
		}
		if !blocked {
			break
		}
		for _, t := range claimed {
			delete(s.lockedTables, t)
		}
		s.cond.Wait()
	}

	if err := d.startTransactionInternal(ctx); err != nil {
		for t := range requested {
			delete(s.lockedTables, t)
		}
		s.mu.Unlock()
		s.cond.Broadcast()
		return nil, err
	}

	handle := &LockHandle{Owner: owner, Tables: requested, OriginalLock: true}
	s.threadLocks[owner] = handle
	s.mu.Unlock()
	for t := range requested {
		s.notify("acquire", t, owner)
	}
	return handle, nil
}

// releaseHandleLocked releases a held lock's tables and ends its
// transaction. Callers must hold s.mu.
func (d *Database) releaseHandleLocked(h *LockHandle) {
	s := d.locks
	if h.OriginalLock {
		// Best-effort: a forced release still must end the open
		// transaction backing the lock.
		_ = d.commitTransactionInternal(context.Background())
	}
	for t := range h.Tables {
		delete(s.lockedTables, t)
		s.notify("release", t, h.Owner)
	}
	delete(s.threadLocks, h.Owner)
	s.cond.Broadcast()
}

// UnlockTables releases a lock handle. A nil handle and a shadow handle
// are both safe no-ops at the engine level.
func (d *Database) UnlockTables(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return nil
	}
	if !handle.OriginalLock {
		return nil
	}
	s := d.locks
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := d.commitTransactionInternal(ctx); err != nil {
		return err
	}
	for t := range handle.Tables {
		delete(s.lockedTables, t)
		s.notify("release", t, handle.Owner)
	}
	delete(s.threadLocks, handle.Owner)
	s.cond.Broadcast()
	return nil
}

// UnlockTablesRollback releases a lock handle after rolling back its
// transaction instead of committing, for a caller aborting a
// multi-statement operation partway through (e.g. schema evolution).
func (d *Database) UnlockTablesRollback(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return nil
	}
	if !handle.OriginalLock {
		return nil
	}
	s := d.locks
	s.mu.Lock()
	defer s.mu.Unlock()

	err := d.rollbackTransactionInternal(ctx)
	for t := range handle.Tables {
		delete(s.lockedTables, t)
		s.notify("release", t, handle.Owner)
	}
	delete(s.threadLocks, handle.Owner)
	s.cond.Broadcast()
	return err
}

// WaitForTableUnlocked blocks until fullName is unlocked or held by
// owner itself.
func (d *Database) WaitForTableUnlocked(owner, fullName string) {
	s := d.locks
	s.mu.Lock()
	for {
		holder, locked := s.lockedTables[fullName]
		if !locked || holder == owner {
			break
		}
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// LockRecords derives a canonical key from dbName, table, and the field
// name/value pairs, then blocks (spinning with 1ms sleeps) until owner
// holds it exclusively, or returns immediately if owner already does.
func (d *Database) LockRecords(owner, dbName, table string, fields []FieldValue) *RecordLockHandle {
	key := recordLockKey(dbName, table, fields)
	s := d.locks
	for {
		s.recordMu.Lock()
		holder, held := s.recordLocks[key]
		if !held || holder == owner {
			s.recordLocks[key] = owner
			s.recordMu.Unlock()
			return &RecordLockHandle{Key: key, Owner: owner}
		}
		s.recordMu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

// UnlockRecords removes the key from the record-lock tree.
func (d *Database) UnlockRecords(h *RecordLockHandle) {
	if h == nil {
		return
	}
	s := d.locks
	s.recordMu.Lock()
	delete(s.recordLocks, h.Key)
	s.recordMu.Unlock()
}

// FieldValue is a (name, stringified value) pair used both to build
// record-lock keys and SQL predicate lists.
type FieldValue struct {
	Name  string
	Value string
}

func recordLockKey(dbName, table string, fields []FieldValue) string {
	key := dbName + "\x00" + table
	for _, f := range fields {
		key += "\x00" + f.Name + "\x00" + f.Value
	}
	return key
}

// startTransactionInternal issues the engine BEGIN only on the 0→1
// transition of the recursive counter (spec.md §5).
func (d *Database) startTransactionInternal(ctx context.Context) error {
	s := d.locks
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.txCount == 0 {
		if err := d.engine.BeginTx(ctx); err != nil {
			return err
		}
	}
	s.txCount++
	logging.TransactionEvent("begin", s.txCount)
	return nil
}

// commitTransactionInternal issues the engine COMMIT only on the 1→0
// transition.
func (d *Database) commitTransactionInternal(ctx context.Context) error {
	s := d.locks
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.txCount > 1 {
		s.txCount--
		logging.TransactionEvent("commit", s.txCount)
		return nil
	}
	if s.txCount == 0 {
		return nil
	}
	if err := d.engine.Commit(ctx); err != nil {
		return err
	}
	s.txCount--
	logging.TransactionEvent("commit", s.txCount)
	return nil
}

// rollbackTransactionInternal issues the engine ROLLBACK only on the
// 1→0 transition; nested rollbacks just decrement.
func (d *Database) rollbackTransactionInternal(ctx context.Context) error {
	s := d.locks
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.txCount > 1 {
		s.txCount--
		logging.TransactionEvent("rollback", s.txCount)
		return nil
	}
	if s.txCount == 0 {
		return nil
	}
	if err := d.engine.Rollback(ctx); err != nil {
		return err
	}
	s.txCount--
	logging.TransactionEvent("rollback", s.txCount)
	return nil
}

// StartTransaction, CommitTransaction, and RollbackTransaction are the
// public, explicitly-callable forms of the recursive transaction counter
// (spec.md §5 property #8).
func (d *Database) StartTransaction(ctx context.Context) error {
	return d.startTransactionInternal(ctx)
}

func (d *Database) CommitTransaction(ctx context.Context) error {
	return d.commitTransactionInternal(ctx)
}

func (d *Database) RollbackTransaction(ctx context.Context) error {
	return d.rollbackTransactionInternal(ctx)
}
