// Package diskqueue persists batches that failed to send and retransmits them.
//
// Each failed request is written to its own file in a storage directory:
//
//	{id}_{createdMillis}.bulk        stored, eligible for retransmission
//	{id}_{createdMillis}.bulk.lock   locked, a retransmission is in flight
//
// Renaming a file from the first form to the second is the only mutual
// exclusion between senders, including senders in other processes that share
// the directory. The rename is hidden behind [Locker] so an advisory lock
// ([FlockLocker]) can be used instead.
//
// A [Queue] keeps the list of stored files, a round-robin cursor and a
// monotonic file id. It never holds more than MaxStoredRequests files: the
// oldest are evicted before a new one is accepted. Lock files older than
// [StaleLockWindow] are treated as abandoned by a crashed sender and are
// returned to the stored state by [Queue.Sync].
//
// Retransmission is message based. [Queue.RetransmitNext] locks one file,
// decodes it and offers it on [Queue.Retransmissions]. The consumer sends it
// and reports the verdict through [Queue.Complete].
//
// One Queue exists per directory per process; use a [Registry] to obtain it.
package diskqueue
