package cosign

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// Credentials identify the CoSign account used for signing.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// TimestampConfig asks the service to countersign the signature with a timestamp authority.
type TimestampConfig struct {
	URL      string
	Username string
	Password string
}

type ClaimedIdentity struct {
	Name          string
	NameQualifier string
	LogonPassword string
}

// ConfValue is a single configuration entry; exactly one of the values is set.
type ConfValue struct {
	ID           string
	IntegerValue *int
	StringValue  *string
}

func IntegerConfValue(id string, v int) ConfValue {
	return ConfValue{ID: id, IntegerValue: &v}
}

func StringConfValue(id string, v string) ConfValue {
	return ConfValue{ID: id, StringValue: &v}
}

type Base64Data struct {
	MimeType string
	Data     []byte
}

// SignRequest is the DssSign request sent for a single digest.
type SignRequest struct {
	ClaimedIdentity     ClaimedIdentity
	SignatureType       string
	Flags               uint32
	ConfigurationValues []ConfValue
	Document            Base64Data
}

// NewSignRequest builds the request for a digest computed with hash.
func NewSignRequest(creds Credentials, hash crypto.Hash, digest []byte, ts *TimestampConfig) (*SignRequest, error) {
	flags, err := Flags(hash)
	if err != nil {
		return nil, err
	}

	if len(digest) != hash.Size() {
		return nil, fmt.Errorf("%w: digest has %d bytes, %v produces %d", ErrInvalidInput, len(digest), hash, hash.Size())
	}

	req := &SignRequest{
		ClaimedIdentity: ClaimedIdentity{
			Name:          creds.Username,
			NameQualifier: creds.Domain,
			LogonPassword: creds.Password,
		},
		SignatureType: SignatureType,
		Flags:         flags,
		Document: Base64Data{
			MimeType: DocumentMimeType,
			Data:     digest,
		},
	}

	if ts != nil {
		req.ConfigurationValues = append(req.ConfigurationValues,
			IntegerConfValue(ConfUseTimestamp, 1),
			StringConfValue(ConfTimestampURL, ts.URL),
			StringConfValue(ConfTimestampUser, ts.Username),
			StringConfValue(ConfTimestampPWD, ts.Password),
		)
	}

	return req, nil
}

// Envelope renders the request as a SOAP 1.1 envelope.
func (r *SignRequest) Envelope() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	envelope := doc.CreateElement(soapPrefix + ":" + EnvelopeTag)
	envelope.CreateAttr("xmlns:"+soapPrefix, SoapNamespace)

	dssSign := envelope.CreateElement(soapPrefix + ":" + BodyTag).CreateElement(DssSignTag)
	dssSign.CreateAttr("xmlns", SapiNamespace)

	signRequest := dssSign.CreateElement(SignRequestTag)
	signRequest.CreateAttr("xmlns", DssNamespace)

	signRequest.AddChild(r.optionalInputs())
	signRequest.AddChild(r.inputDocuments())

	return doc
}

func (r *SignRequest) optionalInputs() *etree.Element {
	optionalInputs := etree.NewElement(OptionalInputsTag)

	identity := optionalInputs.CreateElement(ClaimedIdentityTag)
	name := identity.CreateElement(NameTag)
	name.CreateAttr(NameQualifierAttr, r.ClaimedIdentity.NameQualifier)
	name.SetText(r.ClaimedIdentity.Name)

	password := identity.CreateElement(SupportingInfoTag).CreateElement(LogonPasswordTag)
	password.CreateAttr("xmlns", SapiNamespace)
	password.SetText(r.ClaimedIdentity.LogonPassword)

	optionalInputs.CreateElement(SignatureTypeTag).SetText(r.SignatureType)

	flags := optionalInputs.CreateElement(FlagsTag)
	flags.CreateAttr("xmlns", SapiNamespace)
	flags.SetText(strconv.FormatUint(uint64(r.Flags), 10))

	if len(r.ConfigurationValues) > 0 {
		values := optionalInputs.CreateElement(ConfigurationValuesTag)
		values.CreateAttr("xmlns", SapiNamespace)

		for _, v := range r.ConfigurationValues {
			confValue := values.CreateElement(ConfValueTag)
			confValue.CreateElement(ConfValueIDTag).SetText(v.ID)

			switch {
			case v.IntegerValue != nil:
				confValue.CreateElement(IntegerValueTag).SetText(strconv.Itoa(*v.IntegerValue))
			case v.StringValue != nil:
				confValue.CreateElement(StringValueTag).SetText(*v.StringValue)
			}
		}
	}

	return optionalInputs
}

func (r *SignRequest) inputDocuments() *etree.Element {
	inputDocuments := etree.NewElement(InputDocumentsTag)

	data := inputDocuments.CreateElement(DocumentTag).CreateElement(Base64DataTag)
	data.CreateAttr(MimeTypeAttr, r.Document.MimeType)
	data.SetText(base64.StdEncoding.EncodeToString(r.Document.Data))

	return inputDocuments
}
