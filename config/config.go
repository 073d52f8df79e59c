// package config implements discovery of a local daemon's RPC endpoint and
// the subset of the ipfs config file the RPC backend reads.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/kubo-rpc-backend/misc/fsutil"
	ma "github.com/multiformats/go-multiaddr"
)

// Config is the part of the ipfs config file a client needs.
type Config struct {
	Addresses Addresses // local node's addresses
}

// Addresses holds the listen addresses of the daemon.
type Addresses struct {
	API Strings // address for the local API (RPC)
}

const (
	// DefaultPathName is the default config dir name.
	DefaultPathName = ".ipfs"
	// DefaultPathRoot is the path to the default config dir location.
	DefaultPathRoot = "~/" + DefaultPathName
	// DefaultConfigFile is the filename of the configuration file.
	DefaultConfigFile = "config"
	// DefaultApiFile is the file a running daemon writes its RPC address to.
	DefaultApiFile = "api"
	// EnvDir is the environment variable used to change the path root.
	EnvDir = "IPFS_PATH"

	// DefaultAPIAddress is where a stock daemon serves the RPC API.
	DefaultAPIAddress = "/ip4/127.0.0.1/tcp/5001"
)

// ErrApiNotFound if we fail to find a running daemon.
var ErrApiNotFound = errors.New("ipfs api address could not be found")

// PathRoot returns the default configuration root directory.
func PathRoot() (string, error) {
	dir := os.Getenv(EnvDir)
	var err error
	if len(dir) == 0 {
		dir, err = fsutil.ExpandHome(DefaultPathRoot)
	}
	return dir, err
}

// Path returns the path `extension` relative to the configuration root. If an
// empty string is provided for `configroot`, the default root is used.
func Path(configroot, extension string) (string, error) {
	if len(configroot) == 0 {
		dir, err := PathRoot()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, extension), nil

	}
	return filepath.Join(configroot, extension), nil
}

// Filename returns the configuration file path given a configuration root
// directory and a user-provided configuration file path argument with the
// following rules:
//   - If the user-provided configuration file path is empty, use the default one.
//   - If the configuration root directory is empty, use the default one.
//   - If the user-provided configuration file path is only a file name, use the
//     configuration root directory, otherwise use only the user-provided path
//     and ignore the configuration root.
func Filename(configroot, userConfigFile string) (string, error) {
	if userConfigFile == "" {
		return Path(configroot, DefaultConfigFile)
	}

	if filepath.Dir(userConfigFile) == "." {
		return Path(configroot, userConfigFile)
	}

	return userConfigFile, nil
}

// ApiAddr reads the api file in the specified ipfs path. A missing file is
// reported as ErrApiNotFound.
func ApiAddr(ipfspath string) (ma.Multiaddr, error) {
	baseDir, err := fsutil.ExpandHome(ipfspath)
	if err != nil {
		return nil, err
	}

	api, err := fsutil.ReadTrimmed(filepath.Join(baseDir, DefaultApiFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrApiNotFound
		}
		return nil, err
	}

	return ma.NewMultiaddr(api)
}

// ConfiguredApiAddr returns the first RPC listen address of the config file
// under ipfspath.
func ConfiguredApiAddr(ipfspath string) (ma.Multiaddr, error) {
	baseDir, err := fsutil.ExpandHome(ipfspath)
	if err != nil {
		return nil, err
	}
	filename, err := Filename(baseDir, "")
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := ReadConfigFile(filename, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrApiNotFound
		}
		return nil, err
	}
	if len(cfg.Addresses.API) == 0 {
		return nil, ErrApiNotFound
	}

	a, err := ma.NewMultiaddr(cfg.Addresses.API[0])
	if err != nil {
		return nil, fmt.Errorf("invalid Addresses.API in %s: %w", filename, err)
	}
	return a, nil
}
