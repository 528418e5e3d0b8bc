// Package entrycache coordinates concurrent access to cache entries that are
// persisted through a pluggable provider (disk, Redis, in-memory).
//
// Every key has at most one live generation. The first opener of a cold key
// becomes its writer; openers that arrive while the write is in flight are
// queued and released, in request order, once the writer completes (as readers
// of that generation) or abandons (as failures). A readable generation can be
// replaced with Recreate: the old generation is marked superseded, readers
// already attached keep reading it until they detach, and every later opener is
// bound to the new generation.
//
// Components:
//   - Record[V]: one generation of an entry (value, metadata, state).
//   - Access[V]: Open / OpenNormally / RecreateEntry, built on a per-key ledger.
//   - Pending[V]: single-assignment result of an Open; optional callbacks are
//     delivered on per-key lanes in resolution order.
//   - GenStore: per-key generation sequence (Local by default, Redis optional).
//   - Provider + Codec[V]: persistence of the newest readable generation.
//
// Typical flow:
//
//	p, _ := acc.OpenNormally(ctx, "http://200/")
//	out, err := p.Wait(ctx)
//	switch {
//	case err != nil: // writer failed, withdrawn, closed
//	case out.Role == entrycache.RoleWriter:
//	    _ = out.Handle.Complete(ctx, body, meta)
//	case out.NeedsRevalidation:
//	    // ask the origin; on new content:
//	    w, _ := out.Handle.Recreate(ctx)
//	    _ = w.Complete(ctx, fresh, freshMeta)
//	default:
//	    use(out.Handle.Value())
//	}
//	defer out.Handle.Close()
package entrycache
