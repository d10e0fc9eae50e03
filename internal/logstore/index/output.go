package index

// OutputKind discriminates the variants of an extraction output.
type OutputKind uint8

const (
	// OutputReference names a byte range within the entry itself.
	// Prefer it where possible; it avoids copying key bytes.
	OutputReference OutputKind = iota

	// OutputOwned supplies independent key bytes unrelated to the entry,
	// for example when the entry is stored compressed.
	OutputOwned

	// OutputRemove retracts all values associated with the key. Only the
	// index is affected; the entry itself is never removed.
	OutputRemove

	// OutputRemovePrefix retracts all values for all keys with the given
	// prefix. Only the index is affected.
	OutputRemovePrefix
)

func (k OutputKind) String() string {
	switch k {
	case OutputReference:
		return "reference"
	case OutputOwned:
		return "owned"
	case OutputRemove:
		return "remove"
	case OutputRemovePrefix:
		return "remove_prefix"
	default:
		return "unknown"
	}
}

// Output is one result of an extraction function.
type Output struct {
	Kind OutputKind

	// Start and End delimit a [Start, End) range into the entry bytes for
	// OutputReference.
	Start uint64
	End   uint64

	// Key holds the key bytes for OutputOwned and OutputRemove, or the
	// prefix for OutputRemovePrefix.
	Key []byte
}

// Reference returns an output naming the entry's own bytes in [start, end).
func Reference(start, end uint64) Output {
	return Output{Kind: OutputReference, Start: start, End: end}
}

// Owned returns an output carrying independent key bytes.
func Owned(key []byte) Output {
	return Output{Kind: OutputOwned, Key: key}
}

// Remove returns an output retracting all values for key.
func Remove(key []byte) Output {
	return Output{Kind: OutputRemove, Key: key}
}

// RemovePrefix returns an output retracting all values for keys with the
// given prefix.
func RemovePrefix(prefix []byte) Output {
	return Output{Kind: OutputRemovePrefix, Key: prefix}
}

// KeyBytes resolves the output to concrete key bytes against the entry's
// data. A Reference outside the entry's bounds is a programming error (a
// caller defect, not disk damage). Remove and RemovePrefix outputs carry
// retraction instructions, not keys, and are rejected.
func (o Output) KeyBytes(data []byte) ([]byte, error) {
	switch o.Kind {
	case OutputReference:
		if o.Start > o.End || o.End > uint64(len(data)) {
			return nil, newRangeError(o.Start, o.End, data)
		}
		return data[o.Start:o.End], nil
	case OutputOwned:
		return o.Key, nil
	default:
		return nil, newMisuseError(o.Kind)
	}
}
