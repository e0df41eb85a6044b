// Package bundle packages a directory tree into a single container file and
// restores it later, either one file at a time or by synchronizing a whole
// target directory.
//
// A container is a compressed stream of entries. When a password is
// configured the entry stream is encrypted with AES-256-CBC before
// compression, using key material derived with PBKDF2-HMAC-SHA512:
//
//	container := compress(payload)
//	payload   := cipher(entries) | entries
//
// The container has no index, so every read is a forward scan.
//
// # Building
//
//	b, err := bundle.NewBuilder("out/app.bundle", bundle.BuildWithPassword(pw))
//	if err != nil {
//	    return err
//	}
//	if err := b.AddFolder("./dist", ""); err != nil {
//	    return err
//	}
//	stats, err := b.Commit(ctx)
//
// # Reading
//
//	r, err := bundle.NewReader("out/app.bundle", bundle.ReadWithPassword(pw))
//	if err != nil {
//	    return err
//	}
//	err = r.ExtractFile(ctx, "config/app.json", "/tmp/app.json")
//
// # Synchronizing
//
// SyncTo reconciles a target directory with the container. [SyncHash]
// compares content fingerprints and rewrites only files that differ.
// [SyncFast] trusts size and modification time:
//
//	stats, err := r.SyncTo(ctx, "/srv/app", bundle.SyncHash)
//
// Synchronization never deletes files that are absent from the container.
package bundle
