// health-rewards-system/services/nft_service_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// NFTServiceClient talks to the NFT minting service that holds the
// signing keys and submits the actual contract call. It implements
// ChainMinter; the engine assumes no retry contract from it.
type NFTServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewNFTServiceClient(baseURL, token string) *NFTServiceClient {
	return &NFTServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chainMintRequest struct {
	WalletAddress string `json:"wallet_address"`
	BadgeTypeID   string `json:"badge_type_id"`
	MetadataURL   string `json:"metadata_url,omitempty"`
}

// MintBadge calls /mint on the NFT service.
func (c *NFTServiceClient) MintBadge(ctx context.Context, walletAddress, badgeTypeID, metadataURL string) (*ChainMintResult, error) {
	url := fmt.Sprintf("%s/api/v1/badges/mint", c.BaseURL)

	jsonData, _ := json.Marshal(chainMintRequest{
		WalletAddress: walletAddress,
		BadgeTypeID:   badgeTypeID,
		MetadataURL:   metadataURL,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("NFTService /mint returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("chain mint failed: %d", resp.StatusCode)
	}

	var out ChainMintResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
