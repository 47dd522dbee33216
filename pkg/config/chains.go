package config

// chainNames maps chain IDs to their names
var chainNames = map[int]string{
	1:        "ETHEREUM",
	11155111: "SEPOLIA",
	8453:     "BASE",
	84532:    "BASE_SEPOLIA",
}

// defaultRPCURLs maps chain IDs to public RPC endpoints
var defaultRPCURLs = map[int]string{
	8453:  "https://mainnet.base.org",
	84532: "https://sepolia.base.org",
}

// zkRailAddresses maps chain IDs to deployed ZKRail contracts
var zkRailAddresses = map[int]string{
	84532: "0x887A72ABf9395b0a45Dca391901cCD71243cd1b3",
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID int) string {
	return chainNames[chainID]
}

// GetDefaultRPCURL returns the public RPC endpoint for a chain, if known
func GetDefaultRPCURL(chainID int) string {
	return defaultRPCURLs[chainID]
}

// GetZKRailAddress returns the deployed ZKRail contract for a chain, if known
func GetZKRailAddress(chainID int) string {
	return zkRailAddresses[chainID]
}
