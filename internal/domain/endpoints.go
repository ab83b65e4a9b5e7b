package domain

// CloudSource is a remotely hosted document holding an encrypted list of
// fallback API hosts.
type CloudSource struct {
	// Name is a label for logs, e.g. "gitlab".
	Name string `json:"name" yaml:"name"`

	// URL is where the document is fetched from.
	URL string `json:"url" yaml:"url"`
}

// Endpoints are the currently resolved hosts. An empty field means
// unresolved.
type Endpoints struct {
	API      string `json:"api"`
	Frontend string `json:"frontend"`
}

// AdvertAsset is a decrypted advertisement ready for display.
// Image is the identity key: the asset is only decrypted again when the
// image reported by the backend changes.
type AdvertAsset struct {
	Image    string `json:"image"`
	DataURI  string `json:"data_uri"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

// Seed is the initial persisted configuration.
type Seed struct {
	APIHosts []string      `json:"api_hosts" yaml:"api_hosts"`
	Clouds   []CloudSource `json:"clouds" yaml:"clouds"`
}
