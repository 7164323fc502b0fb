package enums

import "slices"

// ContributionMethod selects how a contribution is funded.
type ContributionMethod string

const (
	ContributionMethodVirtual ContributionMethod = "virtual"
	ContributionMethodACH     ContributionMethod = "ach"
)

var validContributionMethods = []ContributionMethod{
	ContributionMethodVirtual,
	ContributionMethodACH,
}

func (c ContributionMethod) String() string {
	return string(c)
}

func (c ContributionMethod) IsValid() bool {
	return slices.Contains(validContributionMethods, c)
}

func ParseContributionMethod(value string) (ContributionMethod, error) {
	return parse("contribution method", validContributionMethods, value)
}
