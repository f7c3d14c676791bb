package mellon

// The Mellon grant database speaks GraphQL. The bulk query returns the
// basics of many grants at once plus a total count, the single query
// returns the funded amount of one grant.

const bulkQueryName = "GrantFilterQuery"

const bulkQuery = `
query GrantFilterQuery($term: String!, $limit: Int!, $offset: Int!, $sort: SearchSort, $amountRanges: [FilterRangeInput!], $grantMakingAreas: [String!], $country: [String!], $pastProgram: Boolean, $yearRange: FilterRangeInput, $years: [Int!], $state: [String!], $ideas: [String!], $features: [String!]) {
    grantSearch(
        term: $term
        limit: $limit
        offset: $offset
        sort: $sort
        filter: {pastProgram: $pastProgram, grantMakingAreas: $grantMakingAreas, country: $country, years: $years, yearRange: $yearRange, amountRanges: $amountRanges, state: $state, ideas: $ideas, features: $features}
    ) {
        ...GrantSearchResults
    }
}

fragment GrantSearchResults on GrantSearchResultWithTotal {
    entities {
        data {
            title
            grantMakingArea
            description
            dateAwarded
            id
            grantee
        }
    }
    totalCount
}`

const singleGrantQuery = `
query($grantId: String!) {
    grantDetails(grantId: $grantId) {
        grant {
            amount
        }
    }
}`

type graphqlRequest struct {
	OperationName string `json:"operationName,omitempty"`
	Variables     any    `json:"variables"`
	Query         string `json:"query"`
}

type bulkVariables struct {
	Limit            int      `json:"limit"`
	Offset           int      `json:"offset"`
	Term             string   `json:"term"`
	Sort             string   `json:"sort"`
	Years            []int    `json:"years"`
	GrantMakingAreas []string `json:"grantMakingAreas"`
	Ideas            []string `json:"ideas"`
	PastProgram      bool     `json:"pastProgram"`
	AmountRanges     []string `json:"amountRanges"`
	Country          []string `json:"country"`
	State            []string `json:"state"`
	Features         []string `json:"features"`
}

type singleGrantVariables struct {
	GrantID string `json:"grantId"`
}
