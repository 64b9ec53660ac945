/*
Package main in the directory config_gen implements a tool to read configuration from a template,
and generate customized configuration files for each node.
The generated configuration file particularly contains the Schnorr signing keys, and the tool
writes a signed synthetic DAG that every node can replay.
*/
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/config"
	"github.com/gitzhang10/mysticeti/dag"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/spf13/viper"
	"go.dedis.ch/kyber/v3"
)

var errTooManyFaulty = errors.New("faulty authorities hold too much stake")

type template struct {
	authorities    map[string]uint64
	rounds         uint64
	faultyNumber   int
	partialLinks   float64
	seed           int64
	waveLength     uint64
	pipeline       bool
	leaderSchedule string
	logLevel       int
	dagFile        string
	outputDir      string
}

func readTemplate(dir, name string) (*template, error) {
	viperRead := viper.New()
	// for environment variables
	viperRead.SetEnvPrefix(config.EnvPrefix)
	viperRead.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperRead.SetEnvKeyReplacer(replacer)
	viperRead.SetConfigName(name)
	viperRead.AddConfigPath(dir)
	viperRead.SetDefault("rounds", 100)
	viperRead.SetDefault("wave_length", 3)
	viperRead.SetDefault("pipeline", true)
	viperRead.SetDefault("leader_schedule", "stake-weighted")
	viperRead.SetDefault("log_level", 3)
	viperRead.SetDefault("dag_file", "dag.msgpack")
	viperRead.SetDefault("output_dir", "./")
	if err := viperRead.ReadInConfig(); err != nil {
		return nil, err
	}

	t := &template{
		authorities:    make(map[string]uint64),
		rounds:         viperRead.GetUint64("rounds"),
		faultyNumber:   viperRead.GetInt("faulty_number"),
		partialLinks:   viperRead.GetFloat64("partial_links"),
		seed:           viperRead.GetInt64("seed"),
		waveLength:     viperRead.GetUint64("wave_length"),
		pipeline:       viperRead.GetBool("pipeline"),
		leaderSchedule: viperRead.GetString("leader_schedule"),
		logLevel:       viperRead.GetInt("log_level"),
		dagFile:        viperRead.GetString("dag_file"),
		outputDir:      viperRead.GetString("output_dir"),
	}
	for name := range viperRead.GetStringMap("authorities") {
		t.authorities[name] = viperRead.GetUint64("authorities." + name)
	}
	if t.seed == 0 {
		t.seed = time.Now().UnixNano()
	}
	return t, nil
}

func (t *template) committee() (*committee.Committee, error) {
	conf := &config.Config{Authorities: t.authorities}
	return conf.Committee()
}

// pickFaulty chooses the authorities that crash before round 1. The others must
// still hold a quorum of stake.
func pickFaulty(c *committee.Committee, faultyNumber int, r *rand.Rand) ([]types.Authority, error) {
	authorities := c.Authorities()
	r.Shuffle(len(authorities), func(i, j int) {
		authorities[i], authorities[j] = authorities[j], authorities[i]
	})
	if faultyNumber > len(authorities) {
		faultyNumber = len(authorities)
	}
	faulty := authorities[:faultyNumber]
	var stake uint64
	for _, a := range faulty {
		stake += c.Stake(a)
	}
	if c.TotalStake()-stake < c.QuorumThreshold() {
		return nil, fmt.Errorf("%d authorities with stake %d: %w", faultyNumber, stake, errTooManyFaulty)
	}
	sort.Slice(faulty, func(i, j int) bool { return faulty[i] < faulty[j] })
	return faulty, nil
}

// generateDAG builds rounds 1..rounds of signed blocks. Each live authority references
// its own previous block and the previous round of the others, dropping each other
// parent with probability partialLinks as long as a quorum of stake remains.
func generateDAG(c *committee.Committee, signers []kyber.Scalar, rounds uint64, faulty []types.Authority,
	partialLinks float64, r *rand.Rand) []*types.StatementBlock {
	crashed := make(map[types.Authority]bool, len(faulty))
	for _, a := range faulty {
		crashed[a] = true
	}
	builder := dag.NewBuilder(c).WithSigners(signers)
	for round := uint64(1); round <= rounds; round++ {
		previous := builder.Refs(round - 1)
		var previousStake uint64
		for _, ref := range previous {
			previousStake += c.Stake(ref.Authority)
		}
		for _, a := range c.Authorities() {
			if crashed[a] {
				continue
			}
			parents := make([]types.BlockReference, 0, len(previous))
			stake := previousStake
			for _, ref := range previous {
				if ref.Authority != a && r.Float64() < partialLinks &&
					stake-c.Stake(ref.Authority) >= c.QuorumThreshold() {
					stake -= c.Stake(ref.Authority)
					continue
				}
				parents = append(parents, ref)
			}
			builder.Block(a, round, parents...)
		}
	}
	return builder.Blocks()
}

// writeConfigs writes one <name>.yaml per authority, each with its own private key.
func writeConfigs(t *template, privateKeys map[string]string, publicKeys map[string]string) error {
	for name := range t.authorities {
		viperWrite := viper.New()
		viperWrite.SetConfigFile(filepath.Join(t.outputDir, name+".yaml"))
		viperWrite.Set("name", name)
		viperWrite.Set("authorities", t.authorities)
		viperWrite.Set("privkey", privateKeys[name])
		viperWrite.Set("cluster_pubkey", publicKeys)
		viperWrite.Set("wave_length", t.waveLength)
		viperWrite.Set("pipeline", t.pipeline)
		viperWrite.Set("leader_schedule", t.leaderSchedule)
		viperWrite.Set("log_level", t.logLevel)
		viperWrite.Set("dag_file", t.dagFile)
		if err := viperWrite.WriteConfig(); err != nil {
			return err
		}
	}
	return nil
}

func generate(t *template) ([]types.Authority, error) {
	c, err := t.committee()
	if err != nil {
		return nil, err
	}

	// create the Schnorr keys
	signers := make([]kyber.Scalar, c.Size())
	privateKeys := make(map[string]string, c.Size())
	publicKeys := make(map[string]string, c.Size())
	for _, a := range c.Authorities() {
		privateKey, publicKey := sign.GenKeys()
		privAsBytes, err := sign.EncodePrivateKey(privateKey)
		if err != nil {
			return nil, err
		}
		pubAsBytes, err := sign.EncodePublicKey(publicKey)
		if err != nil {
			return nil, err
		}
		signers[a] = privateKey
		privateKeys[a.String()] = hex.EncodeToString(privAsBytes)
		publicKeys[a.String()] = hex.EncodeToString(pubAsBytes)
	}

	r := rand.New(rand.NewSource(t.seed))
	faulty, err := pickFaulty(c, t.faultyNumber, r)
	if err != nil {
		return nil, err
	}
	blocks := generateDAG(c, signers, t.rounds, faulty, t.partialLinks, r)
	dagFile := t.dagFile
	if !filepath.IsAbs(dagFile) {
		dagFile = filepath.Join(t.outputDir, dagFile)
	}
	if err := dag.WriteSnapshotFile(dagFile, blocks); err != nil {
		return nil, err
	}
	return faulty, writeConfigs(t, privateKeys, publicKeys)
}

func main() {
	t, err := readTemplate("./", "config_template")
	if err != nil {
		panic(err)
	}
	faulty, err := generate(t)
	if err != nil {
		panic(err)
	}
	fmt.Println("FaultyNodes:", faulty)
}
