/*
Package config implements the type to pass the arguments to the committer
and implements a function to load the parameters from a configuration file.
*/
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/consensus"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/viper"
	"go.dedis.ch/kyber/v3"
)

const EnvPrefix = "MYSTICETI"

var (
	ErrAuthorityName = errors.New("authority names must be node0 .. node<n-1>")
	ErrUnknownName   = errors.New("name is not one of the authorities")
	ErrPublicKey     = errors.New("public key in the config file cannot be decoded correctly")
)

// Config defines a type to describe the configuration.
type Config struct {
	Name              string
	Authorities       map[string]uint64 // map from name to stake
	PublicKeyMap      map[string]kyber.Point
	PrivateKey        kyber.Scalar // nil when blocks are not signed
	WaveLength        uint64
	Pipeline          bool
	LeaderSchedule    consensus.Scheme
	LogLevel          int
	DAGFile           string
	ReachabilityCache int
}

// LoadConfig loads configName.yaml (or any format viper knows) from configDir by package viper.
// Every key can be overridden with an environment variable, e.g. MYSTICETI_WAVE_LENGTH.
func LoadConfig(configDir, configName string) (*Config, error) {
	viperConfig := viper.New()

	// for environment variables
	viperConfig.SetEnvPrefix(EnvPrefix)
	viperConfig.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperConfig.SetEnvKeyReplacer(replacer)
	viperConfig.SetConfigName(configName)
	if configDir == "" {
		configDir = "./"
	}
	viperConfig.AddConfigPath(configDir)

	viperConfig.SetDefault("wave_length", consensus.DefaultWaveLength)
	viperConfig.SetDefault("pipeline", true)
	viperConfig.SetDefault("leader_schedule", string(consensus.StakeWeighted))
	viperConfig.SetDefault("log_level", int(hclog.Info))
	viperConfig.SetDefault("dag_file", "dag.msgpack")
	viperConfig.SetDefault("reachability_cache", 4096)

	if err := viperConfig.ReadInConfig(); err != nil {
		return nil, err
	}

	scheme, err := consensus.ParseScheme(viperConfig.GetString("leader_schedule"))
	if err != nil {
		return nil, err
	}
	conf := &Config{
		Name:              viperConfig.GetString("name"),
		WaveLength:        viperConfig.GetUint64("wave_length"),
		Pipeline:          viperConfig.GetBool("pipeline"),
		LeaderSchedule:    scheme,
		LogLevel:          viperConfig.GetInt("log_level"),
		DAGFile:           viperConfig.GetString("dag_file"),
		ReachabilityCache: viperConfig.GetInt("reachability_cache"),
	}

	authorities := viperConfig.GetStringMap("authorities")
	conf.Authorities = make(map[string]uint64, len(authorities))
	for name := range authorities {
		conf.Authorities[name] = viperConfig.GetUint64("authorities." + name)
	}
	if _, ok := conf.Authorities[conf.Name]; conf.Name != "" && !ok {
		return nil, fmt.Errorf("%q: %w", conf.Name, ErrUnknownName)
	}

	if privKeyAsString := viperConfig.GetString("privkey"); privKeyAsString != "" {
		privKey, err := hex.DecodeString(privKeyAsString)
		if err != nil {
			return nil, err
		}
		if conf.PrivateKey, err = sign.DecodePrivateKey(privKey); err != nil {
			return nil, err
		}
	}

	pubKeyMapString := viperConfig.GetStringMap("cluster_pubkey")
	conf.PublicKeyMap = make(map[string]kyber.Point, len(pubKeyMapString))
	for name, pkAsInterface := range pubKeyMapString {
		pkAsString, ok := pkAsInterface.(string)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrPublicKey)
		}
		pkAsBytes, err := hex.DecodeString(pkAsString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pubKey, err := sign.DecodePublicKey(pkAsBytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		conf.PublicKeyMap[name] = pubKey
	}
	return conf, nil
}

// AuthorityOf parses the index out of a node<i> name.
func AuthorityOf(name string) (types.Authority, error) {
	if !strings.HasPrefix(name, "node") {
		return 0, fmt.Errorf("%q: %w", name, ErrAuthorityName)
	}
	id, err := strconv.Atoi(name[4:])
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%q: %w", name, ErrAuthorityName)
	}
	return types.Authority(id), nil
}

// Authority returns the index of this node.
func (c *Config) Authority() (types.Authority, error) {
	return AuthorityOf(c.Name)
}

// Committee builds the committee snapshot. It carries the public keys when the
// configuration lists them, so that block signatures are verified.
func (c *Config) Committee() (*committee.Committee, error) {
	stakes := make([]uint64, len(c.Authorities))
	seen := make([]bool, len(c.Authorities))
	for name, stake := range c.Authorities {
		a, err := AuthorityOf(name)
		if err != nil {
			return nil, err
		}
		if int(a) >= len(stakes) || seen[a] {
			return nil, fmt.Errorf("%q: %w", name, ErrAuthorityName)
		}
		seen[a] = true
		stakes[a] = stake
	}
	cmt, err := committee.New(stakes)
	if err != nil {
		return nil, err
	}
	if len(c.PublicKeyMap) == 0 {
		return cmt, nil
	}

	publicKeys := make([]kyber.Point, len(stakes))
	for name, pk := range c.PublicKeyMap {
		a, err := AuthorityOf(name)
		if err != nil {
			return nil, err
		}
		if !cmt.Exists(a) {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownName)
		}
		publicKeys[a] = pk
	}
	return cmt.WithPublicKeys(publicKeys)
}
