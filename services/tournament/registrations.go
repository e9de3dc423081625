package tournament

import (
	"bufio"
	"encoding/hex"
	"os"
	"strings"

	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// LoadRegistrations reads the out-of-band miner registration file: one
// hex triple per line, miner_pk:ring_pk:key_image. Blank lines and lines
// starting with '#' are skipped.
func LoadRegistrations(path string) ([]Registration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError("registrations open failed", err)
	}
	defer f.Close()

	var out []Registration

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		parts := strings.Split(text, ":")
		if len(parts) != 3 {
			return nil, errors.NewInvalidArgumentError("registrations line %d: expected 3 fields, got %d", line, len(parts))
		}

		minerBytes, err := hex.DecodeString(parts[0])
		if err != nil {
			return nil, errors.NewInvalidArgumentError("registrations line %d: bad miner key", line, err)
		}
		miner, err := model.PublicKeyFromBytes(minerBytes)
		if err != nil {
			return nil, errors.NewInvalidArgumentError("registrations line %d: bad miner key", line, err)
		}

		ringBytes, err := hex.DecodeString(parts[1])
		if err != nil || len(ringBytes) != 32 {
			return nil, errors.NewInvalidArgumentError("registrations line %d: bad ring key", line)
		}
		var ringKey clsag.PublicKey
		copy(ringKey[:], ringBytes)

		kiBytes, err := hex.DecodeString(parts[2])
		if err != nil || len(kiBytes) != 32 {
			return nil, errors.NewInvalidArgumentError("registrations line %d: bad key image", line)
		}
		var ki clsag.KeyImage
		copy(ki[:], kiBytes)

		out = append(out, Registration{Miner: miner, RingKey: ringKey, KeyImage: ki})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewStorageError("registrations read failed", err)
	}

	return out, nil
}
