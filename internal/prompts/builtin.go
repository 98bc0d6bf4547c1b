package prompts

var builtin = map[string]string{
	PrivacyDefault: `You remove personal information from call transcripts.

Personal information includes names, phone numbers, email addresses, national
ID numbers, bank or card account numbers and street addresses.

Replace each item with its first character followed by asterisks. Leave every
other word unchanged.

Transcript:
{usertxt}

Respond with JSON only:
{"privacy_exist": "Y or N", "exist_reason": "what was found", "privacy_rm_usertxt": "the redacted transcript"}`,

	PrivacyLoosedContact: `You remove contact details from call transcripts.

Only phone numbers and email addresses count as personal information here.
Names, places and product numbers stay as they are.

Replace each contact detail with its first character followed by asterisks.

Transcript:
{usertxt}

Respond with JSON only:
{"privacy_exist": "Y or N", "exist_reason": "what was found", "privacy_rm_usertxt": "the redacted transcript"}`,

	ClassificationDefault: `Classify the following call.

Call:
{usertxt}

Pick exactly one category:
1. CLASS_PRE_SALES: pre-sales consultation (purchase, price inquiry)
2. CLASS_CUSTOMER_SERVICE: customer service (order lookup, delivery status)
3. CLASS_TECHNICAL_SUPPORT: technical support (usage, troubleshooting)
4. CLASS_GENERAL: general call with no specific category
5. CLASS_COMPLAINT: complaint or claim (defects, service dissatisfaction)
6. CLASS_SUPPORT: other support

Respond with JSON only:
{"code": "category code", "confidence": 0-100, "reason": "why"}`,

	ClassificationPreSale: `Decide whether the following call is a pre-sales call.

Call:
{usertxt}

- CLASS_PRE_SALES: purchase, price inquiry, spec confirmation, purchase decision
- CLASS_GENERAL: anything else

Respond with JSON only:
{"code": "category code", "confidence": 0-100, "reason": "why"}`,

	IncompleteSales: `You are a sales consultant. Identify incomplete sales elements in the call below.

Incomplete sales elements are:
1. Customer requirements not confirmed
2. Proposal not made
3. Price negotiation incomplete
4. Next steps not defined
5. Contract not completed

Call:
{transcript}

Report in this form:
- Customer requirements: [confirmed / requirements not confirmed]
- Proposal: [made / proposal not made]
- Price negotiation: [complete / price negotiation incomplete]
- Next steps: [clear / next steps not defined]
- Contract: [completed / contract not completed]
- Overall analysis: [main problems and improvements]`,
}
