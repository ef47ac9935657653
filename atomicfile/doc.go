/*
Package atomicfile writes storage images so that a crash or a failed
write never leaves a truncated image behind.

Data goes to a temporary file in the destination directory. Close syncs
it and renames it over the destination. If Write, Sync or Close fails,
the temporary file is removed and the destination is left untouched:

	func saveImage(path string, d []byte) error {
		w, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// Close after Close is a no-op
		defer w.RemoveIfNotClosed()
		if _, err = w.Write(d); err != nil {
			return err
		}
		return w.Close()
	}

See https://presstige.io/p/atomicfile-22143bf788b542fda2262ca7aee57ae4
*/
package atomicfile
