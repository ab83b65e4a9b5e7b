package redis

const (
	// KeyAPIHosts is the list of candidate API hosts, in probe order
	KeyAPIHosts = "lineup:hosts:api"
	// KeyClouds holds the JSON encoded cloud sources
	KeyClouds = "lineup:clouds"
	// KeyPrefixEndpoint is the prefix for resolved endpoint keys
	KeyPrefixEndpoint = "lineup:endpoint:"
	// KeyAdvert holds the JSON encoded current advert asset
	KeyAdvert = "lineup:advert"
)

// EndpointKey returns the Redis key for a resolved endpoint kind ("api", "frontend")
func EndpointKey(kind string) string {
	return KeyPrefixEndpoint + kind
}
