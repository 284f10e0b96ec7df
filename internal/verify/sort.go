package verify

import "sort"

// sortAllCategories gives every category a deterministic order, since the
// underlying target map has none.
func sortAllCategories(r *Report) {
	sort.Strings(r.Missing)
	sort.Strings(r.Modified)
	sort.Strings(r.TypeMismatch)
	sort.Strings(r.ModeMismatch)
	sort.Strings(r.Unexpected)
	sort.Strings(r.SecretMissingPlaintext)
	sort.Strings(r.SecretMissingCiphertext)
	sort.Strings(r.SecretMismatch)
	sort.Strings(r.SecretDecryptError)
}
