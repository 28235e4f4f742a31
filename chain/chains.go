package chain

// Chain IDs supported out of the box.
const (
	MainnetID uint64 = 1
	SepoliaID uint64 = 11155111
)

// Info describes a chain for selection and display.
type Info struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	IsTestnet bool   `json:"isTestnet"`
}

// Chains lists known chains, mainnets first.
var Chains = []Info{
	{ID: MainnetID, Name: "Ethereum Mainnet"},
	{ID: SepoliaID, Name: "Sepolia", IsTestnet: true},
}

// Lookup returns the chain with the given id.
func Lookup(id uint64) (Info, bool) {
	for _, c := range Chains {
		if c.ID == id {
			return c, true
		}
	}
	return Info{}, false
}

// Visible filters Chains, hiding testnets unless showTestnets is set.
func Visible(showTestnets bool) []Info {
	out := make([]Info, 0, len(Chains))
	for _, c := range Chains {
		if c.IsTestnet && !showTestnets {
			continue
		}
		out = append(out, c)
	}
	return out
}
