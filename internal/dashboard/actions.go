package dashboard

import (
	"stockinsights/internal/domain"
)

// ActionType names a dashboard mutation.
type ActionType string

const (
	AddCompany              ActionType = "ADD_COMPANY"
	RemoveCompany           ActionType = "REMOVE_COMPANY"
	StockPriceData          ActionType = "STOCK_PRICE_DATA"
	SelectCompany           ActionType = "SELECT_COMPANY"
	DeselectCompany         ActionType = "DESELECT_COMPANY"
	CloseArticleList        ActionType = "CLOSE_ARTICLE_LIST"
	NewsLoading             ActionType = "NEWS_LOADING"
	NewsData                ActionType = "NEWS_DATA"
	CompaniesLoading        ActionType = "COMPANIES_LOADING"
	CompanyData             ActionType = "COMPANY_DATA"
	ClearPotentialCompanies ActionType = "CLEAR_POTENTIAL_COMPANIES"
	TweetsLoading           ActionType = "TWEETS_LOADING"
	TweetsData              ActionType = "TWEETS_DATA"
	CloseTweets             ActionType = "CLOSE_TWEETS"
	StringData              ActionType = "STRING_DATA"
	SwitchDate              ActionType = "SWITCH_DATE"
	DataUnavailable         ActionType = "DATA_UNAVAILABLE"
)

// ErrorKind identifies which kind of data could not be loaded.
type ErrorKind string

const (
	PriceError     ErrorKind = "price"
	NewsError      ErrorKind = "news"
	TweetsError    ErrorKind = "tweets"
	CompaniesError ErrorKind = "companies"
	StringsError   ErrorKind = "strings"
)

// Action is the message carried by the bus. Only the fields relevant to Type
// are set.
type Action struct {
	Type ActionType `json:"type"`

	// Symbols names the companies an action applies to (add, remove,
	// select, deselect, news and tweets requests).
	Symbols []string `json:"symbols,omitempty"`

	Companies []domain.Company               `json:"companies,omitempty"`
	Prices    map[string][]domain.PricePoint `json:"prices,omitempty"`
	News      *domain.NewsResult             `json:"news,omitempty"`
	Query     string                         `json:"query,omitempty"`
	Entity    string                         `json:"entity,omitempty"`
	Tweets    *domain.TweetsResult           `json:"tweets,omitempty"`
	Language  string                         `json:"language,omitempty"`
	Strings   map[string]string              `json:"strings,omitempty"`
	Date      domain.Date                    `json:"date,omitempty"`
	Kind      ErrorKind                      `json:"kind,omitempty"`
	Err       string                         `json:"error,omitempty"`
}
