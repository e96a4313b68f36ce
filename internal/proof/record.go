package proof

// AddressRecord binds a fid to the name and owner address of its first
// username proof. FID is the primary key; a later record for the same FID
// replaces the earlier one entirely.
type AddressRecord struct {
	FID   uint64 `json:"fid"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}
