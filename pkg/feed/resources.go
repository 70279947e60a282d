package feed

// Dashboard feeds.
const (
	ResourceFundingRates      = "funding_rates"
	ResourcePositions         = "positions"
	ResourcePositionSnapshots = "position_snapshots"
	ResourcePositionAlerts    = "position_alerts"
	ResourceUserSettings      = "user_settings"
	ResourceCoins             = "coins"
	ResourceCoinMarkets       = "coin_markets"
)

// DefaultSchema is the database schema feeds live in unless configured.
const DefaultSchema = "public"

// DefaultKeyField is the identity column of most resources.
const DefaultKeyField = "id"

// channelSuffix is appended to a resource name to form its channel name.
const channelSuffix = "_realtime"

// Resources returns every dashboard feed name.
func Resources() []string {
	return []string{
		ResourceFundingRates,
		ResourcePositions,
		ResourcePositionSnapshots,
		ResourcePositionAlerts,
		ResourceUserSettings,
		ResourceCoins,
		ResourceCoinMarkets,
	}
}

// ChannelName returns the transport channel name for a resource.
func ChannelName(resource string) string {
	return resource + channelSuffix
}

// KeyFieldFor returns the identity column for a resource. Funding rates
// are one row per coin.
func KeyFieldFor(resource string) string {
	if resource == ResourceFundingRates {
		return "coin"
	}
	return DefaultKeyField
}
