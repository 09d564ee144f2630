package netparams

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/retarget"
)

var (
	// ErrUnknownNetwork is returned by ByName for unsupported networks.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrInvalidGenesis is returned when the genesis header does not
	// match the declared genesis hash or difficulty rules.
	ErrInvalidGenesis = errors.New("invalid genesis header")
)

// Params describes the network a header chain is validated against.
type Params struct {
	// Name is the human readable network name.
	Name string

	// Net is the network magic.
	Net wire.BitcoinNet

	// Genesis is the first header of the chain. It is trusted and is
	// inserted when a chain is created.
	Genesis blockheader.Header

	// GenesisHash is the expected hash of Genesis.
	GenesisHash chainhash.Hash

	// Retarget holds the difficulty rules.
	Retarget retarget.Params
}

// FromChainParams derives Params from btcd's network definition.
func FromChainParams(cp *chaincfg.Params) (*Params, error) {
	powLimit, overflow := uint256.FromBig(cp.PowLimit)
	if overflow {
		return nil, fmt.Errorf("%s pow limit exceeds 256 bits",
			cp.Name)
	}

	p := &Params{
		Name:        cp.Name,
		Net:         cp.Net,
		Genesis:     *blockheader.FromWire(&cp.GenesisBlock.Header),
		GenesisHash: *cp.GenesisHash,
		Retarget: retarget.Params{
			PowLimit:                 powLimit,
			PowLimitBits:             cp.PowLimitBits,
			TargetTimespan:           cp.TargetTimespan,
			TargetTimePerBlock:       cp.TargetTimePerBlock,
			RetargetAdjustmentFactor: cp.RetargetAdjustmentFactor,
			ReduceMinDifficulty:      cp.ReduceMinDifficulty,
			MinDiffReductionTime:     cp.MinDiffReductionTime,
		},
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks that the difficulty rules are consistent and that the
// genesis header hashes to GenesisHash with a decodable target.
func (p *Params) Validate() error {
	if err := p.Retarget.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}

	if hash := p.Genesis.BlockHash(); hash != p.GenesisHash {
		return fmt.Errorf("%w: %s genesis hashes to %v, want %v",
			ErrInvalidGenesis, p.Name, hash, p.GenesisHash)
	}

	target, err := blockheader.CompactToTarget(p.Genesis.Bits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if target.IsZero() || target.Gt(p.Retarget.PowLimit) {
		return fmt.Errorf("%w: genesis bits %08x outside pow limit",
			ErrInvalidGenesis, p.Genesis.Bits)
	}

	return nil
}

// Copy returns a deep copy of p.
func (p *Params) Copy() *Params {
	c := *p
	c.Retarget.PowLimit = p.Retarget.PowLimit.Clone()

	return &c
}

func mustFromChainParams(cp *chaincfg.Params) *Params {
	p, err := FromChainParams(cp)
	if err != nil {
		panic(err)
	}

	return p
}

// MainNet returns the parameters of the main Bitcoin network.
func MainNet() *Params {
	return mustFromChainParams(&chaincfg.MainNetParams)
}

// TestNet3 returns the parameters of the version 3 test network.
func TestNet3() *Params {
	return mustFromChainParams(&chaincfg.TestNet3Params)
}

// RegressionNet returns the parameters of the regression test network.
// Difficulty never changes at retarget boundaries on regtest.
func RegressionNet() *Params {
	p := mustFromChainParams(&chaincfg.RegressionNetParams)
	p.Retarget.NoRetargeting = true

	return p
}

// SimNet returns the parameters of btcd's simulation network.
func SimNet() *Params {
	return mustFromChainParams(&chaincfg.SimNetParams)
}

// SigNet returns the parameters of the default signet.
func SigNet() *Params {
	return mustFromChainParams(&chaincfg.SigNetParams)
}

var networks = map[string]func() *Params{
	"mainnet":  MainNet,
	"testnet":  TestNet3,
	"testnet3": TestNet3,
	"regtest":  RegressionNet,
	"simnet":   SimNet,
	"signet":   SigNet,
}

// ByName returns the parameters of a network by its common name.
func ByName(name string) (*Params, error) {
	fn, ok := networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q, supported networks are %v",
			ErrUnknownNetwork, name, Names())
	}

	return fn(), nil
}

// Names returns the sorted list of names accepted by ByName.
func Names() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
