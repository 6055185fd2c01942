package avstemming

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/oppdrag"
)

// Типы действий в протоколе сверки.
const (
	AksjonStart = "START"
	AksjonData  = "DATA"
	AksjonAvsl  = "AVSL"
)

// FortegnTillegg — фиксированный знак агрегатов протокола.
const FortegnTillegg = "T"

// tomNoekkel передаётся в обоих ключах, когда в окне нет ни одной выплаты.
// Требование внешнего протокола: литерал "0", а не пустой диапазон.
const tomNoekkel = "0"

const (
	timeFormat = "2006010215"

	defaultDetaljerPerMelding = 70
)

// Config задаёт параметры батча сверки.
type Config struct {
	// DetaljerPerMelding ограничивает число detalj-записей в одном DATA-сообщении
	// (лимит размера сообщений внешней системы).
	DetaljerPerMelding   int
	AvleverendeKomponent string
	MottakendeKomponent  string
	Underkomponent       string
	BrukerID             string
}

// DefaultConfig возвращает параметры сверки по умолчанию.
func DefaultConfig() Config {
	return Config{
		DetaljerPerMelding:   defaultDetaljerPerMelding,
		AvleverendeKomponent: "UTBET",
		MottakendeKomponent:  "OS",
		Underkomponent:       "PEN",
		BrukerID:             "utbetaling",
	}
}

// Avstemmingsdata — одно сообщение протокола сверки. Каждое сообщение —
// самостоятельный XML-документ по внешней схеме.
type Avstemmingsdata struct {
	XMLName  struct{}  `xml:"avstemmingsdata"`
	Aksjon   Aksjon    `xml:"aksjon"`
	Total    *Total    `xml:"total,omitempty"`
	Periode  *Periode  `xml:"periode,omitempty"`
	Grunnlag *Grunnlag `xml:"grunnlag,omitempty"`
	Detaljer []Detalj  `xml:"detalj"`
}

// Aksjon — конверт сообщения: тип действия, диапазон ключей и идентификатор батча.
type Aksjon struct {
	AksjonType              string `xml:"aksjonType"`
	KildeType               string `xml:"kildeType"`
	AvstemmingType          string `xml:"avstemmingType"`
	AvleverendeKomponent    string `xml:"avleverendeKomponentKode"`
	MottakendeKomponent     string `xml:"mottakendeKomponentKode"`
	Underkomponent          string `xml:"underkomponentKode"`
	NokkelFom               string `xml:"nokkelFom"`
	NokkelTom               string `xml:"nokkelTom"`
	AvleverendeAvstemmingID string `xml:"avleverendeAvstemmingId"`
	BrukerID                string `xml:"brukerId"`
}

// Total — агрегат по всем выплатам окна независимо от статуса.
type Total struct {
	Antall  int             `xml:"totalAntall"`
	Beloep  decimal.Decimal `xml:"totalBelop"`
	Fortegn string          `xml:"fortegn"`
}

// Grunnlag — разбивка по статусам. FEILET не входит ни в одну корзину:
// это сбои до приёма поручения, а не расхождение реестра.
type Grunnlag struct {
	GodkjentAntall  int             `xml:"godkjentAntall"`
	GodkjentBeloep  decimal.Decimal `xml:"godkjentBelop"`
	GodkjentFortegn string          `xml:"godkjentFortegn"`
	VarselAntall    int             `xml:"varselAntall"`
	VarselBeloep    decimal.Decimal `xml:"varselBelop"`
	VarselFortegn   string          `xml:"varselFortegn"`
	AvvistAntall    int             `xml:"avvistAntall"`
	AvvistBeloep    decimal.Decimal `xml:"avvistBelop"`
	AvvistFortegn   string          `xml:"avvistFortegn"`
	ManglerAntall   int             `xml:"manglerAntall"`
	ManglerBeloep   decimal.Decimal `xml:"manglerBelop"`
	ManglerFortegn  string          `xml:"manglerFortegn"`
}

// Periode — границы окна сверки с точностью до часа.
type Periode struct {
	DatoAvstemtFom string `xml:"datoAvstemtFom"`
	DatoAvstemtTom string `xml:"datoAvstemtTom"`
}

// Detalj — одна выплата окна.
type Detalj struct {
	Status      string `xml:"status"`
	VedtakID    string `xml:"avleverendeTransaksjonNokkel"`
	MeldingKode string `xml:"meldingKode,omitempty"`
	Tidspunkt   string `xml:"tidspunkt"`
}

// BuildMeldinger строит упорядоченный набор сообщений сверки для окна [fra, til):
// START, одно или несколько DATA и AVSL. Агрегаты (total/grunnlag/periode)
// присутствуют только в первом DATA-сообщении; в остальных они отсутствуют,
// а не обнулены. Результат детерминирован для одного и того же окна.
func BuildMeldinger(batchID string, utbetalinger []domain.Utbetaling, fra, til time.Time, cfg Config) []Avstemmingsdata {
	sortert := make([]domain.Utbetaling, len(utbetalinger))
	copy(sortert, utbetalinger)
	sort.SliceStable(sortert, func(i, j int) bool {
		if !sortert[i].Avstemmingsnoekkel.Equal(sortert[j].Avstemmingsnoekkel) {
			return sortert[i].Avstemmingsnoekkel.Before(sortert[j].Avstemmingsnoekkel)
		}
		return sortert[i].VedtakID < sortert[j].VedtakID
	})

	nokkelFom, nokkelTom := noekkelOmraade(sortert)

	aksjon := func(aksjonType string) Aksjon {
		return Aksjon{
			AksjonType:              aksjonType,
			KildeType:               "AVLEV",
			AvstemmingType:          "GRSN",
			AvleverendeKomponent:    cfg.AvleverendeKomponent,
			MottakendeKomponent:     cfg.MottakendeKomponent,
			Underkomponent:          cfg.Underkomponent,
			NokkelFom:               nokkelFom,
			NokkelTom:               nokkelTom,
			AvleverendeAvstemmingID: batchID,
			BrukerID:                cfg.BrukerID,
		}
	}

	meldinger := make([]Avstemmingsdata, 0, 3)
	meldinger = append(meldinger, Avstemmingsdata{Aksjon: aksjon(AksjonStart)})

	for i, chunk := range chunkDetaljer(sortert, cfg.DetaljerPerMelding) {
		melding := Avstemmingsdata{
			Aksjon:   aksjon(AksjonData),
			Detaljer: chunk,
		}
		if i == 0 {
			melding.Total = buildTotal(sortert)
			melding.Grunnlag = buildGrunnlag(sortert)
			melding.Periode = &Periode{
				DatoAvstemtFom: fra.Format(timeFormat),
				// Верхняя граница окна исключается; отчитываемся последним
				// целиком покрытым часом.
				DatoAvstemtTom: til.Add(-time.Hour).Format(timeFormat),
			}
		}
		meldinger = append(meldinger, melding)
	}

	meldinger = append(meldinger, Avstemmingsdata{Aksjon: aksjon(AksjonAvsl)})
	return meldinger
}

// noekkelOmraade возвращает минимальный и максимальный avstemmingsnoekkel
// среди выплат окна, либо литералы "0" для пустого окна.
func noekkelOmraade(sortert []domain.Utbetaling) (string, string) {
	if len(sortert) == 0 {
		return tomNoekkel, tomNoekkel
	}
	fom := oppdrag.FormatNoekkel(sortert[0].Avstemmingsnoekkel)
	tom := oppdrag.FormatNoekkel(sortert[len(sortert)-1].Avstemmingsnoekkel)
	return fom, tom
}

// chunkDetaljer разбивает detalj-записи на батчи не длиннее size.
// Всегда возвращает хотя бы один (возможно пустой) батч: пустое окно
// тоже даёт одно DATA-сообщение с нулевыми агрегатами.
func chunkDetaljer(sortert []domain.Utbetaling, size int) [][]Detalj {
	if size <= 0 {
		size = defaultDetaljerPerMelding
	}

	detaljer := make([]Detalj, 0, len(sortert))
	for _, utbetaling := range sortert {
		detaljer = append(detaljer, Detalj{
			Status:      string(utbetaling.Status),
			VedtakID:    utbetaling.VedtakID.String(),
			MeldingKode: utbetaling.KvitteringMeldingKode,
			Tidspunkt:   oppdrag.FormatNoekkel(utbetaling.Avstemmingsnoekkel),
		})
	}

	if len(detaljer) == 0 {
		return [][]Detalj{nil}
	}

	chunks := make([][]Detalj, 0, (len(detaljer)+size-1)/size)
	for start := 0; start < len(detaljer); start += size {
		end := start + size
		if end > len(detaljer) {
			end = len(detaljer)
		}
		chunks = append(chunks, detaljer[start:end])
	}
	return chunks
}

func buildTotal(sortert []domain.Utbetaling) *Total {
	total := &Total{Fortegn: FortegnTillegg, Beloep: decimal.Zero}
	for _, utbetaling := range sortert {
		total.Antall++
		total.Beloep = total.Beloep.Add(utbetalingBeloep(utbetaling))
	}
	return total
}

func buildGrunnlag(sortert []domain.Utbetaling) *Grunnlag {
	grunnlag := &Grunnlag{
		GodkjentBeloep:  decimal.Zero,
		GodkjentFortegn: FortegnTillegg,
		VarselBeloep:    decimal.Zero,
		VarselFortegn:   FortegnTillegg,
		AvvistBeloep:    decimal.Zero,
		AvvistFortegn:   FortegnTillegg,
		ManglerBeloep:   decimal.Zero,
		ManglerFortegn:  FortegnTillegg,
	}

	for _, utbetaling := range sortert {
		beloep := utbetalingBeloep(utbetaling)
		switch utbetaling.Status {
		case domain.StatusGodkjent:
			grunnlag.GodkjentAntall++
			grunnlag.GodkjentBeloep = grunnlag.GodkjentBeloep.Add(beloep)
		case domain.StatusGodkjentMedFeil:
			grunnlag.VarselAntall++
			grunnlag.VarselBeloep = grunnlag.VarselBeloep.Add(beloep)
		case domain.StatusAvvist:
			grunnlag.AvvistAntall++
			grunnlag.AvvistBeloep = grunnlag.AvvistBeloep.Add(beloep)
		case domain.StatusSendt:
			grunnlag.ManglerAntall++
			grunnlag.ManglerBeloep = grunnlag.ManglerBeloep.Add(beloep)
		}
	}

	return grunnlag
}

// utbetalingBeloep возвращает сумму поручения как сумму его строк.
func utbetalingBeloep(utbetaling domain.Utbetaling) decimal.Decimal {
	sum := decimal.Zero
	for _, linje := range utbetaling.Linjer {
		sum = sum.Add(linje.Beloep)
	}
	return sum
}
