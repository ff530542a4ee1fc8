package ports

// Verifier checks that a signature over the challenge message was produced by
// the wallet's key. The gate treats the implementation as a pluggable
// primitive.
type Verifier interface {
	Verify(address, message, signature string) error
}
