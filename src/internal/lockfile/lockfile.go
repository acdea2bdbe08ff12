// Package lockfile records the last committed transaction in a file. No
// solv command reads or writes it.
package lockfile

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Step struct {
	Name       string `toml:"name"`
	EVR        string `toml:"evr"`
	Arch       string `toml:"arch"`
	Repo       string `toml:"repo"`
	Class      string `toml:"class"` // erase, install, multi-install, upgraded, downgraded, reinstalled, changed, arch-change, vendor-change
	FromEVR    string `toml:"from_evr,omitempty"`
	DeltaBased bool   `toml:"delta_based"`
}

type Transaction struct {
	ID                string    `toml:"id"`
	Verb              string    `toml:"verb"`
	CommittedAt       time.Time `toml:"committed_at"`
	InstallSizeDeltaB int64     `toml:"install_size_delta_bytes"`
	Steps             []Step    `toml:"steps"`
}

type History struct {
	Last         Transaction   `toml:"last"`
	Transactions []Transaction `toml:"transactions"`
}

func Load(path string) (*History, error) {
	var h History
	if _, err := toml.DecodeFile(path, &h); err != nil {
		if os.IsNotExist(err) {
			return &History{}, nil
		}
		return nil, err
	}
	return &h, nil
}

func (h *History) Record(txn Transaction) {
	h.Last = txn
	h.Transactions = append(h.Transactions, txn)
}

func (h *History) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(h)
}
