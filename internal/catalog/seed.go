package catalog

import "context"

// Seed loads the launch roster of marketplace agents. Existing slugs
// are left untouched so it is safe to run at every startup.
func Seed(ctx context.Context, store Store) error {
	for _, agent := range seedAgents() {
		if _, err := store.GetAgentBySlug(ctx, agent.Slug); err == nil {
			continue
		}
		if err := store.CreateAgent(ctx, agent); err != nil {
			return err
		}
	}
	return nil
}

func seedAgents() []*Agent {
	return []*Agent{
		{
			Slug:        "neural-artist",
			Name:        "Neural Artist",
			Description: "Generates original artwork from a text prompt using a diffusion model.",
			Category:    CategoryCreative,
			Capabilities: []string{
				"text-to-image",
				"style-transfer",
			},
			Pricing:   Pricing{PerTask: "0.050000", Currency: "USDC"},
			Rating:    4.8,
			Status:    StatusOnline,
			AvatarURL: "/avatars/neural-artist.png",
		},
		{
			Slug:        "neural-artist-pro",
			Name:        "Neural Artist Pro",
			Description: "Premium artwork generation on a higher quality model with finer detail.",
			Category:    CategoryCreative,
			Capabilities: []string{
				"text-to-image",
				"high-detail",
			},
			Pricing:   Pricing{PerTask: "0.150000", Currency: "USDC"},
			Rating:    4.9,
			Status:    StatusOnline,
			AvatarURL: "/avatars/neural-artist-pro.png",
		},
		{
			Slug:        "nft-metamind",
			Name:        "NFT MetaMind",
			Description: "Writes collection-ready NFT metadata: names, lore and trait descriptions.",
			Category:    CategoryBlockchain,
			Capabilities: []string{
				"metadata-generation",
				"trait-naming",
			},
			Pricing:   Pricing{PerTask: "0.020000", Currency: "USDC"},
			Rating:    4.6,
			Status:    StatusOnline,
			AvatarURL: "/avatars/nft-metamind.png",
		},
		{
			Slug:        "pinata-express",
			Name:        "Pinata Express",
			Description: "Pins files and JSON to IPFS and returns a gateway URL.",
			Category:    CategoryStorage,
			Capabilities: []string{
				"ipfs-pinning",
				"json-pinning",
			},
			Pricing:   Pricing{PerTask: "0.010000", Currency: "USDC"},
			Rating:    4.9,
			Status:    StatusOnline,
			AvatarURL: "/avatars/pinata-express.png",
		},
		{
			Slug:        "xrpl-minter",
			Name:        "XRPL Minter",
			Description: "Mints NFTs on the XRP Ledger testnet and reports the resulting token ID.",
			Category:    CategoryBlockchain,
			Capabilities: []string{
				"nft-minting",
				"xrpl",
			},
			Pricing:   Pricing{PerTask: "0.100000", Currency: "USDC"},
			Rating:    4.5,
			Status:    StatusOnline,
			AvatarURL: "/avatars/xrpl-minter.png",
		},
		{
			Slug:        "collection-curator",
			Name:        "Collection Curator",
			Description: "Suggests themes, sizing and launch strategy for an NFT collection.",
			Category:    CategoryMarketing,
			Capabilities: []string{
				"collection-planning",
				"launch-strategy",
			},
			Pricing:   Pricing{PerTask: "0.030000", Currency: "USDC"},
			Rating:    4.4,
			Status:    StatusOnline,
			AvatarURL: "/avatars/collection-curator.png",
		},
	}
}
