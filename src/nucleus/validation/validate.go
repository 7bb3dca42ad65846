package validation

import (
	"encoding/json"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// CallbackRunner executes the zome validation callbacks. Implemented by the
// ribosome; faked in tests.
type CallbackRunner interface {
	ValidateAppEntry(zome, argsJSON string) error
	ValidateLink(zome, argsJSON string) error
}

// Data is what a validator gets to see: the package plus the claimed
// sources.
type Data struct {
	Package *Package `json:"package"`
	Sources []string `json:"sources"`
}

// EntryValidationArgs is the JSON payload handed to
// __hdk_validate_app_entry.
type EntryValidationArgs struct {
	EntryType string `json:"entry_type"`
	Entry     string `json:"entry"`
	Data      Data   `json:"validation_data"`
}

// LinkValidationArgs is the JSON payload handed to __hdk_validate_link.
type LinkValidationArgs struct {
	EntryType string `json:"entry_type"`
	Link      string `json:"link"`
	Data      Data   `json:"validation_data"`
}

// ValidateEntry runs the full pipeline for one entry: tamper check against
// the package header, provenance verification, then type dispatch into the
// zome callbacks.
func ValidateEntry(entry *core.Entry, data Data, dna *core.Dna, runner CallbackRunner) error {
	if data.Package == nil || data.Package.Header == nil {
		return Infra("validation data carries no header")
	}
	header := data.Package.Header

	// Tamper check: the address claimed by the header must match the
	// entry we were handed.
	if header.EntryAddress != entry.Address() {
		return Fail("entry address does not match the address in the header")
	}
	if header.EntryType != entry.EntryType {
		return Fail("entry type does not match the type in the header")
	}

	for _, prov := range header.Provenances {
		if !prov.Verify([]byte(entry.Content())) {
			return Fail("provenance signature does not verify")
		}
	}

	switch entry.EntryType {
	case core.DnaEntryType, core.DeletionEntryType, core.CapTokenGrantEntryType, core.AgentIDEntryType:
		return nil
	case core.LinkAddEntryType, core.LinkRemoveEntryType:
		return validateLink(entry, data, dna, runner)
	}
	if entry.EntryType.IsApp() {
		return validateAppEntry(entry, data, dna, runner)
	}
	return NotImplemented()
}

func validateAppEntry(entry *core.Entry, data Data, dna *core.Dna, runner CallbackRunner) error {
	if dna == nil {
		return Infra("no DNA loaded")
	}
	zomeName, _, ok := dna.ZomeForEntryType(entry.EntryType)
	if !ok {
		return Fail("unknown app entry type " + string(entry.EntryType))
	}

	args, err := json.Marshal(EntryValidationArgs{
		EntryType: string(entry.EntryType),
		Entry:     entry.Value,
		Data:      data,
	})
	if err != nil {
		return Infra(err.Error())
	}
	return callbackResult(runner.ValidateAppEntry(zomeName, string(args)))
}

func validateLink(entry *core.Entry, data Data, dna *core.Dna, runner CallbackRunner) error {
	if dna == nil {
		return Infra("no DNA loaded")
	}
	link, err := core.LinkFromEntry(entry)
	if err != nil {
		return Fail("malformed link entry: " + err.Error())
	}
	// Link validation is dispatched through the zome that declares the
	// base entry's type; with a single zome that is simply the zome.
	zomeName := firstZome(dna)
	if zomeName == "" {
		return Fail("DNA has no zomes")
	}

	linkJSON, err := json.Marshal(link)
	if err != nil {
		return Infra(err.Error())
	}
	args, err := json.Marshal(LinkValidationArgs{
		EntryType: string(entry.EntryType),
		Link:      string(linkJSON),
		Data:      data,
	})
	if err != nil {
		return Infra(err.Error())
	}
	return callbackResult(runner.ValidateLink(zomeName, string(args)))
}

func firstZome(dna *core.Dna) string {
	for name := range dna.Zomes {
		return name
	}
	return ""
}

// callbackResult maps a ribosome callback error onto the validation error
// taxonomy: validation failures become definite rejections, everything
// else an infrastructure fault.
func callbackResult(err error) error {
	if err == nil {
		return nil
	}
	if verr, ok := err.(*Error); ok {
		return verr
	}
	if common.IsKind(err, common.ErrValidationFailed) {
		return Fail(err.Error())
	}
	return Infra(err.Error())
}
