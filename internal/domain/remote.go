package domain

// RemoteConfig is the decrypted answer of the API config endpoint.
// A probe only succeeds when ErrCode is zero and Data is present.
type RemoteConfig struct {
	ErrCode int         `json:"errcode"`
	Data    *ConfigData `json:"data"`
}

// ConfigData carries what the resolver needs from a healthy API host.
type ConfigData struct {
	Advert *Advert  `json:"advert"`
	URLs   []string `json:"urls"`
}

// Advert describes the encrypted advertisement image the backend wants shown.
type Advert struct {
	Image    string `json:"image"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

// Valid reports whether c passes the response-level checks.
func (c *RemoteConfig) Valid() bool {
	return c != nil && c.ErrCode == 0 && c.Data != nil
}

// Asset turns the descriptor into a displayable asset.
func (a *Advert) Asset(dataURI string) AdvertAsset {
	return AdvertAsset{
		Image:    a.Image,
		DataURI:  dataURI,
		URL:      a.URL,
		Name:     a.Name,
		Position: a.Position,
	}
}
