// Package attest commits briefing digests to an on-chain registry contract.
package attest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"xchain-radar/internal/anomaly"
	"xchain-radar/internal/storage"
)

const publishABIJSON = `[{"inputs":[{"internalType":"string","name":"day","type":"string"},{"internalType":"string","name":"chain","type":"string"},{"internalType":"bytes32","name":"summaryHash","type":"bytes32"},{"internalType":"bool","name":"hasAnomaly","type":"bool"},{"internalType":"uint256","name":"evidenceRows","type":"uint256"},{"internalType":"string","name":"model","type":"string"},{"internalType":"string","name":"uri","type":"string"}],"name":"publish","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var publishABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(publishABIJSON))
	if err != nil {
		panic("failed to parse publish ABI: " + err.Error())
	}
	publishABI = parsed
}

// Attestation is the derived on-chain payload for one briefing.
type Attestation struct {
	Day          string
	Chain        string
	SummaryHash  common.Hash
	HasAnomaly   bool
	EvidenceRows int
	Model        string
	URI          string
}

// Derive computes the attestation fields for a stored briefing: keccak of the
// narrative, the text-heuristic anomaly decision, and the snapshot row count.
func Derive(b storage.Briefing, chain, uri string) Attestation {
	return Attestation{
		Day:          b.Day.Format("2006-01-02"),
		Chain:        chain,
		SummaryHash:  crypto.Keccak256Hash([]byte(b.SummaryText)),
		HasAnomaly:   anomaly.FromText(b.SummaryText),
		EvidenceRows: b.EvidenceRowCount(),
		Model:        b.Model,
		URI:          uri,
	}
}

// Options parameterise the publisher.
type Options struct {
	RPCURL     string
	PrivateKey string
	ChainID    int64
	Contract   string
	GasLimit   uint64
	Timeout    time.Duration
}

// Publisher signs and submits publish transactions with a locally tracked
// nonce. The signing account must have a single writer: the nonce is fetched
// once per run and incremented per submission.
type Publisher struct {
	opts     Options
	key      *ecdsa.PrivateKey
	from     common.Address
	contract common.Address
	logger   zerolog.Logger
}

// NewPublisher validates attestation preconditions eagerly: a missing signing
// key or contract address aborts before any transaction is attempted.
func NewPublisher(opts Options, logger zerolog.Logger) (*Publisher, error) {
	if opts.PrivateKey == "" {
		return nil, errors.New("attest: signing key not configured")
	}
	if opts.Contract == "" {
		return nil, errors.New("attest: contract address not configured")
	}
	if !common.IsHexAddress(opts.Contract) {
		return nil, fmt.Errorf("attest: invalid contract address %q", opts.Contract)
	}
	if opts.ChainID <= 0 {
		return nil, errors.New("attest: chain id not configured")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 200000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("attest: parse signing key: %w", err)
	}

	return &Publisher{
		opts:     opts,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		contract: common.HexToAddress(opts.Contract),
		logger:   logger.With().Str("component", "attest").Logger(),
	}, nil
}

// From returns the signing account address.
func (p *Publisher) From() common.Address {
	return p.from
}

// DryRun prints the would-be hash and decision per day without touching the
// network.
func (p *Publisher) DryRun(out io.Writer, atts []Attestation) {
	for _, a := range atts {
		fmt.Fprintf(out, "[DRY] %s → hash=%s rows=%d anom=%v\n", a.Day, a.SummaryHash.Hex(), a.EvidenceRows, a.HasAnomaly)
	}
}

// Publish submits one transaction per attestation, sequentially. The first
// RPC failure aborts the remainder of the batch so the local nonce never
// diverges from the chain.
func (p *Publisher) Publish(ctx context.Context, out io.Writer, atts []Attestation) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout*time.Duration(len(atts)+1))
	defer cancel()

	client, err := ethclient.DialContext(ctx, p.opts.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	nonce, err := client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return fmt.Errorf("fetch account nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch gas price: %w", err)
	}

	signer := types.LatestSignerForChainID(big.NewInt(p.opts.ChainID))

	for _, a := range atts {
		data, err := p.callData(a)
		if err != nil {
			return err
		}

		tx := types.NewTransaction(nonce, p.contract, big.NewInt(0), p.opts.GasLimit, gasPrice, data)
		signed, err := types.SignTx(tx, signer, p.key)
		if err != nil {
			return fmt.Errorf("sign tx for %s: %w", a.Day, err)
		}

		if err := client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("send tx for %s: %w", a.Day, err)
		}

		fmt.Fprintf(out, "[OK] %s tx=%s\n", a.Day, signed.Hash().Hex())
		p.logger.Info().Str("day", a.Day).Str("tx", signed.Hash().Hex()).Bool("anomaly", a.HasAnomaly).Msg("attestation published")
		nonce++
	}

	return nil
}

func (p *Publisher) callData(a Attestation) ([]byte, error) {
	data, err := publishABI.Pack("publish",
		a.Day,
		a.Chain,
		[32]byte(a.SummaryHash),
		a.HasAnomaly,
		big.NewInt(int64(a.EvidenceRows)),
		a.Model,
		a.URI,
	)
	if err != nil {
		return nil, fmt.Errorf("pack publish args for %s: %w", a.Day, err)
	}
	return data, nil
}
