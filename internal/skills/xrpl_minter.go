package skills

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// XRPLTestnet is the default rippled websocket endpoint.
	XRPLTestnet = "wss://s.altnet.rippletest.net:51233"

	// xrplTransferFee is the 7.5% royalty attached to minted tokens,
	// in rippled's 1/100000 units.
	xrplTransferFee = 7500

	xrplDialTimeout = 15 * time.Second
)

// XRPLMinter mints NFTs on the XRP Ledger over a rippled websocket.
type XRPLMinter struct {
	endpoint string
	seed     string
}

// NewXRPLMinter creates the minting skill
func NewXRPLMinter(endpoint, seed string) *XRPLMinter {
	if endpoint == "" {
		endpoint = XRPLTestnet
	}
	return &XRPLMinter{endpoint: endpoint, seed: seed}
}

func (x *XRPLMinter) Slug() string     { return "xrpl-minter" }
func (x *XRPLMinter) Category() string { return "blockchain" }

type xrplRequest struct {
	ID      int            `json:"id"`
	Command string         `json:"command"`
	TxJSON  map[string]any `json:"tx_json,omitempty"`
	Secret  string         `json:"secret,omitempty"`
}

type xrplResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Result struct {
		EngineResult string `json:"engine_result"`
		TxJSON       struct {
			Hash    string `json:"hash"`
			Account string `json:"Account"`
		} `json:"tx_json"`
	} `json:"result"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// Execute mints an NFT whose URI is input["uri"] (typically an IPFS
// gateway URL from a prior pin).
func (x *XRPLMinter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	uri, err := requireString(input, "uri")
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: xrplDialTimeout}
	conn, _, err := dialer.DialContext(ctx, x.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUpstreamFailed, x.endpoint, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	// rippled signs and submits in one round trip on the testnet.
	mint := xrplRequest{
		ID:      1,
		Command: "submit",
		Secret:  x.seed,
		TxJSON: map[string]any{
			"TransactionType": "NFTokenMint",
			"URI":             strings.ToUpper(hex.EncodeToString([]byte(uri))),
			"NFTokenTaxon":    0,
			"TransferFee":     xrplTransferFee,
			"Flags":           8, // transferable
		},
	}
	if err := conn.WriteJSON(mint); err != nil {
		return nil, fmt.Errorf("%w: submit: %v", ErrUpstreamFailed, err)
	}

	var resp xrplResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrUpstreamFailed, err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstreamFailed, resp.Error, resp.ErrorMessage)
	}
	if !strings.HasPrefix(resp.Result.EngineResult, "tes") {
		return nil, fmt.Errorf("%w: mint rejected: %s", ErrUpstreamFailed, resp.Result.EngineResult)
	}

	return map[string]any{
		"tx_hash":      resp.Result.TxJSON.Hash,
		"account":      resp.Result.TxJSON.Account,
		"uri":          uri,
		"transfer_fee": xrplTransferFee,
		"network":      "xrpl-testnet",
	}, nil
}
