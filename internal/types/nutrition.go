package types

// Nutrition holds calories plus the tracked macro set. Calories is an
// estimate field in its own right and is never derived from the macros.
type Nutrition struct {
	Calories float64 `gorm:"not null;default:0" json:"calories"`
	Protein  float64 `gorm:"not null;default:0" json:"protein"`
	Carbs    float64 `gorm:"not null;default:0" json:"carbs"`
	Fat      float64 `gorm:"not null;default:0" json:"fat"`
	Fiber    float64 `gorm:"not null;default:0" json:"fiber"`
}

func (n Nutrition) Scale(factor float64) Nutrition {
	return Nutrition{
		Calories: n.Calories * factor,
		Protein:  n.Protein * factor,
		Carbs:    n.Carbs * factor,
		Fat:      n.Fat * factor,
		Fiber:    n.Fiber * factor,
	}
}

func (n Nutrition) Add(o Nutrition) Nutrition {
	return Nutrition{
		Calories: n.Calories + o.Calories,
		Protein:  n.Protein + o.Protein,
		Carbs:    n.Carbs + o.Carbs,
		Fat:      n.Fat + o.Fat,
		Fiber:    n.Fiber + o.Fiber,
	}
}

func (n Nutrition) IsZero() bool {
	return n.Calories == 0 && n.Protein == 0 && n.Carbs == 0 && n.Fat == 0 && n.Fiber == 0
}
