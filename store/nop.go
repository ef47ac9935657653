package store

// Nop is a Storage for builds without a device. Writes and erases succeed
// without doing anything, reads fail with ErrInvalidStorage.
//
// ReadString returns "" and ErrInvalidStorage, not placeholder text like
// "Dummy content". Callers that displayed a fixed string must handle the error.
type Nop struct{}

func (Nop) Exists(name string) bool {
	return false
}

func (Nop) WriteRaw(name string, content []byte) error {
	return nil
}

func (Nop) ReadRaw(name string) ([]byte, error) {
	return nil, ErrInvalidStorage
}

func (Nop) Erase(name string) error {
	return nil
}

func (Nop) WriteString(name string, s string) error {
	return nil
}

func (Nop) ReadString(name string) (string, error) {
	return "", ErrInvalidStorage
}
