package gitobject

// NewBlob creates a blob object from a file's verbatim contents.
func NewBlob(content []byte) *Object {
	return New(KindBlob, content)
}
