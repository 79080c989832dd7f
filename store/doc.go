// Package store persists healing sessions and their attempt history in a
// local SQLite database, using the pure-Go modernc.org/sqlite driver so no
// cgo or system libraries are required.
//
// Sessions move through the same states the healer reports: running,
// succeeded, exhausted. An exhausted session keeps its final file set and
// attempt history, so a later resume can pick up where it stopped.
//
// Usage:
//
//	st, err := store.New("/var/lib/mendbox/sessions.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	rec := &store.Record{ID: sess.ID(), EntryPoint: "main.py", MaxAttempts: 3}
//	if err := st.CreateSession(rec); err != nil {
//		log.Fatal(err)
//	}
package store
