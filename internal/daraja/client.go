package daraja

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	// CustomerPayBillOnline is the paybill transaction type.
	transactionType = "CustomerPayBillOnline"
)

// The gateway clock runs on Nairobi time; password timestamps and
// settlement dates both use it.
var gatewayTZ = time.FixedZone("EAT", 3*60*60)

type Config struct {
	Environment    string // sandbox | production
	BaseURL        string // overrides Environment when set
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	TokenTimeout   time.Duration
	PushTimeout    time.Duration
}

type Client struct {
	http *resty.Client
	cfg  Config
	now  func() time.Time
}

func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Environment == "production" {
			base = productionBaseURL
		} else {
			base = sandboxBaseURL
		}
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = 30 * time.Second
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 60 * time.Second
	}
	return &Client{
		http: resty.New().SetBaseURL(base).SetHeader("Content-Type", "application/json"),
		cfg:  cfg,
		now:  time.Now,
	}
}

// Password derives the push credential: base64(shortcode + passkey +
// timestamp), timestamp formatted YYYYMMDDHHMMSS on the gateway clock.
func Password(shortcode, passkey string, t time.Time) (password, timestamp string) {
	timestamp = t.In(gatewayTZ).Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
	return password, timestamp
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken exchanges the consumer key/secret for a short-lived bearer
// token. Every failure here surfaces as an auth failure so the
// orchestrator can log it apart from push transport errors. Tokens are
// not cached; each push re-acquires.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TokenTimeout)
	defer cancel()

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
		SetResult(&out).
		Get(tokenPath)
	if err != nil {
		return "", &Error{Kind: KindAuth, Op: "token", Err: err}
	}
	if resp.IsError() {
		return "", &Error{Kind: KindAuth, Op: "token", Msg: fmt.Sprintf("status %d", resp.StatusCode())}
	}
	if out.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Op: "token", Msg: "empty access token"}
	}
	return out.AccessToken, nil
}

type PushRequest struct {
	PhoneNumber      string
	AmountCents      int64
	AccountReference string
	Description      string
}

type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type pushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// RequestPush acquires a token and issues the STK push. The amount is
// truncated to whole currency units; the gateway rejects decimals. A
// nil error means the gateway accepted the request and the caller now
// owns the two correlation identifiers; settlement arrives later on the
// callback URL.
func (c *Client) RequestPush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := Password(c.cfg.Shortcode, c.cfg.Passkey, c.now())
	body := pushPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.AmountCents / 100,
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PushTimeout)
	defer cancel()

	var out PushResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(pushPath)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "stkpush", Err: err}
	}
	if resp.IsError() {
		msg := apiErr.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return nil, &Error{Kind: KindRejected, Op: "stkpush", Msg: msg}
	}
	if out.ResponseCode != "0" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = "non-zero response code " + out.ResponseCode
		}
		return nil, &Error{Kind: KindRejected, Op: "stkpush", Msg: msg}
	}
	return &out, nil
}
