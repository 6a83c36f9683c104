package gitrepo

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"texswarm/apperr"
)

// BootstrapPeer is one line of a bootstrap file: a peer id and the
// addresses a new node should dial to join the swarm.
type BootstrapPeer struct {
	PeerID    string
	Addresses []string
}

// CreateBootstrapFile writes peers to path in the "peer_id,addr1;addr2;..."
// line format.
func CreateBootstrapFile(path string, peers []BootstrapPeer) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.RepositoryError, "create bootstrap file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range peers {
		if _, err := fmt.Fprintf(w, "%s,%s\n", p.PeerID, strings.Join(p.Addresses, ";")); err != nil {
			return apperr.Wrap(apperr.RepositoryError, "write bootstrap file", err)
		}
	}
	return w.Flush()
}

// ReadBootstrapFile parses a bootstrap file written by CreateBootstrapFile.
func ReadBootstrapFile(path string) ([]BootstrapPeer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryError, "open bootstrap file", err)
	}
	defer f.Close()

	var peers []BootstrapPeer
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return nil, apperr.New(apperr.DecodeError, "malformed bootstrap line: "+line)
		}
		peers = append(peers, BootstrapPeer{
			PeerID:    parts[0],
			Addresses: strings.Split(parts[1], ";"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.RepositoryError, "read bootstrap file", err)
	}
	return peers, nil
}
