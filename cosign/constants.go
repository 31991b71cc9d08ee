package cosign

import "crypto"

// XML namespaces of the SAPI Web Services DSS binding.
const (
	SoapNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	SapiNamespace = "http://arx.com/SAPIWS/DSS/1.0/"
	DssNamespace  = "urn:oasis:names:tc:dss:1.0:core:schema"

	soapPrefix = "soap"
)

const (
	SoapAction         = "http://arx.com/SAPIWS/DSS/1.0/DssSign"
	SignatureType      = "urn:ietf:rfc:3369"
	DocumentMimeType   = "application/octet-string"
	ResultMajorSuccess = "urn:oasis:names:tc:dss:1.0:resultmajor:Success"
)

// Request flags. FlagHashSigning marks the buffer as the hash itself and not the data.
const (
	FlagHashSigning uint32 = 0x00000400
	FlagSHA1        uint32 = 0x00100000
	FlagSHA256      uint32 = 0x00004000
	FlagSHA384      uint32 = 0x00008000
	FlagSHA512      uint32 = 0x00010000
)

var digestFlags = map[crypto.Hash]uint32{
	crypto.SHA1:   FlagSHA1,
	crypto.SHA256: FlagSHA256,
	crypto.SHA384: FlagSHA384,
	crypto.SHA512: FlagSHA512,
}

// Configuration value identifiers, in the order they are sent.
const (
	ConfUseTimestamp  = "UseTimestamp"
	ConfTimestampURL  = "TimestampURL"
	ConfTimestampUser = "TimestampUser"
	ConfTimestampPWD  = "TimestampPWD"
)

// Tags
const (
	EnvelopeTag              = "Envelope"
	BodyTag                  = "Body"
	FaultTag                 = "Fault"
	DssSignTag               = "DssSign"
	DssSignResultTag         = "DssSignResult"
	SignRequestTag           = "SignRequest"
	OptionalInputsTag        = "OptionalInputs"
	ClaimedIdentityTag       = "ClaimedIdentity"
	NameTag                  = "Name"
	SupportingInfoTag        = "SupportingInfo"
	LogonPasswordTag         = "LogonPassword"
	SignatureTypeTag         = "SignatureType"
	FlagsTag                 = "Flags"
	ConfigurationValuesTag   = "ConfigurationValues"
	ConfValueTag             = "ConfValue"
	ConfValueIDTag           = "ConfValueID"
	IntegerValueTag          = "IntegerValue"
	StringValueTag           = "StringValue"
	InputDocumentsTag        = "InputDocuments"
	DocumentTag              = "Document"
	Base64DataTag            = "Base64Data"
	ResultTag                = "Result"
	ResultMajorTag           = "ResultMajor"
	ResultMinorTag           = "ResultMinor"
	ResultMessageTag         = "ResultMessage"
	OptionalOutputsTag       = "OptionalOutputs"
	DocumentWithSignatureTag = "DocumentWithSignature"
	SignatureObjectTag       = "SignatureObject"
	Base64SignatureTag       = "Base64Signature"
)

const (
	NameQualifierAttr = "NameQualifier"
	MimeTypeAttr      = "MimeType"
)
