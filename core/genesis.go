package core

import (
	"encoding/json"
	"fmt"
	"os"

	"relicmarket/core/types"
	"relicmarket/crypto"
	"relicmarket/native/market"
)

// GenesisAccount funds an address at launch.
type GenesisAccount struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// GenesisItem registers the holding under sale and hands it to its first
// owner. The vault receives clawback and freeze authority, which is what
// later lets the engine move the item during settlement.
type GenesisItem struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
}

// GenesisMarket initializes the market record at launch.
type GenesisMarket struct {
	Creator          string `json:"creator"`
	RoyaltyRateMilli uint64 `json:"royaltyRateMilli"`
	WaitingRounds    uint64 `json:"waitingRounds"`
}

// Genesis describes the launch state of a market node.
type Genesis struct {
	Accounts []GenesisAccount `json:"accounts"`
	Item     *GenesisItem     `json:"item"`
	Market   *GenesisMarket   `json:"market"`
}

// LoadGenesis reads a genesis specification from a JSON file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	genesis := new(Genesis)
	if err := json.Unmarshal(data, genesis); err != nil {
		return nil, fmt.Errorf("parse genesis file: %w", err)
	}
	return genesis, nil
}

func decodeGenesisAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("genesis %s: %w", field, err)
	}
	return addr.Bytes(), nil
}

// ApplyGenesis writes the launch state. It is meant to run exactly once on
// an empty database.
func (sp *StateProcessor) ApplyGenesis(genesis *Genesis) error {
	if genesis == nil {
		return nil
	}
	manager := sp.Manager()

	for _, acc := range genesis.Accounts {
		addr, err := decodeGenesisAddress("account", acc.Address)
		if err != nil {
			return err
		}
		if err := manager.PutAccount(addr, &types.Account{Balance: acc.Balance}); err != nil {
			return err
		}
	}

	if genesis.Item != nil {
		owner, err := decodeGenesisAddress("item owner", genesis.Item.Owner)
		if err != nil {
			return err
		}
		params := &market.ItemParams{
			Decimals:      0,
			DefaultFrozen: true,
			Clawback:      sp.vault,
			Freeze:        sp.vault,
		}
		if err := manager.RegisterItem(genesis.Item.ID, params); err != nil {
			return err
		}
		if err := manager.SetItemBalance(owner, genesis.Item.ID, 1); err != nil {
			return err
		}
	}

	if genesis.Market != nil {
		if genesis.Item == nil {
			return fmt.Errorf("genesis market requires a genesis item")
		}
		creator, err := decodeGenesisAddress("market creator", genesis.Market.Creator)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(initializePayload{
			Creator:          creator,
			ItemID:           genesis.Item.ID,
			RoyaltyRateMilli: genesis.Market.RoyaltyRateMilli,
			WaitingRounds:    genesis.Market.WaitingRounds,
		})
		if err != nil {
			return err
		}
		tx := &types.Transaction{Type: types.TxTypeInitializeMarket, From: creator, Data: payload}
		if err := sp.ApplyTransaction(tx); err != nil {
			return fmt.Errorf("genesis market initialization: %w", err)
		}
	}
	return nil
}
